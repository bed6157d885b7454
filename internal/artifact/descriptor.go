package artifact

import (
	"bytes"
	"fmt"

	"backend/internal/history"

	"github.com/dslipak/pdf"
)

// DescribePDF 从 PDF 内容构建产物描述（名称、字节数、页数）
// 页数解析失败不阻断计量：描述以 0 页返回，错误交由调用方记录。
func DescribePDF(name string, content []byte) (history.ArtifactDescriptor, error) {
	desc := history.ArtifactDescriptor{
		Name:      name,
		SizeBytes: int64(len(content)),
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return desc, fmt.Errorf("解析 PDF 失败: %w", err)
	}
	desc.Pages = reader.NumPage()

	return desc, nil
}
