package history

import (
	"strings"
	"unicode"
)

// 检索时无意义的高频词
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "with": {},
	"that": {}, "this": {}, "from": {}, "have": {}, "has": {}, "not": {},
	"you": {}, "your": {}, "can": {}, "what": {}, "which": {}, "about": {},
	"into": {}, "their": {}, "there": {}, "these": {}, "those": {},
}

// ExtractKeywords 从文本派生关键词集合
// 确定性：同一输入总产生同一输出。小写化、按非字母数字切分、
// 过滤停用词与短词、按首次出现顺序去重。
func ExtractKeywords(texts ...string) []string {
	seen := make(map[string]struct{})
	var keywords []string

	for _, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if len(w) < 3 {
				continue
			}
			if _, stop := stopwords[w]; stop {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			keywords = append(keywords, w)
		}
	}

	if keywords == nil {
		keywords = []string{}
	}
	return keywords
}
