package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords_LowercasesAndSplits(t *testing.T) {
	got := ExtractKeywords("Analyze the Quarterly Report, please!")
	assert.Equal(t, []string{"analyze", "quarterly", "report", "please"}, got)
}

func TestExtractKeywords_FiltersStopwordsAndShortWords(t *testing.T) {
	got := ExtractKeywords("is it the cat and that dog ok")
	// "is"/"it"/"ok" 过短，"the"/"and"/"that" 为停用词
	assert.Equal(t, []string{"cat", "dog"}, got)
}

func TestExtractKeywords_DedupesFirstSeen(t *testing.T) {
	got := ExtractKeywords("token usage token ledger usage")
	assert.Equal(t, []string{"token", "usage", "ledger"}, got)
}

func TestExtractKeywords_SpansMultipleTexts(t *testing.T) {
	got := ExtractKeywords("summarize document", "document review done")
	assert.Equal(t, []string{"summarize", "document", "review", "done"}, got)
}

func TestExtractKeywords_Deterministic(t *testing.T) {
	input := "Review THIS paper about transformer models; transformer-based, yes."
	first := ExtractKeywords(input)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ExtractKeywords(input))
	}
}

func TestExtractKeywords_EmptyInputReturnsEmptySlice(t *testing.T) {
	got := ExtractKeywords("", "a b!")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtractKeywords_KeepsDigitsInWords(t *testing.T) {
	got := ExtractKeywords("gpt4o handles utf8 text")
	assert.Equal(t, []string{"gpt4o", "handles", "utf8", "text"}, got)
}
