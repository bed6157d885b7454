package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// 未收录模型的回退编码
const fallbackEncoding = "cl100k_base"

// EstimateTokens 估算文本的 token 数
// 调用方只给文本不给用量时的兜底计数；优先用模型对应的编码，
// 未收录的模型回退到 cl100k_base。
func EstimateTokens(model, text string) (int64, error) {
	if text == "" {
		return 0, nil
	}

	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return 0, err
		}
	}

	return int64(len(tkm.Encode(text, nil, nil))), nil
}
