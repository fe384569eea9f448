package stream

import (
	"encoding/json"

	"mercator-hq/jupiter/pkg/core/convert"
)

// OpenAIPassthroughTranslator handles the case where the upstream
// instance already speaks the client's dialect (an OpenAI or
// OpenAI-compatible instance serving an OpenAI-dialect client route):
// chunks are forwarded as-is, with only the usage tally extracted for
// the terminal accounting event. Grounded on
// pkg/providers/openai/streaming.go's one-JSON-object-per-line reader.
type OpenAIPassthroughTranslator struct {
	usage convert.OpenAIUsage
}

// NewOpenAIPassthroughTranslator creates a translator for one stream.
func NewOpenAIPassthroughTranslator() *OpenAIPassthroughTranslator {
	return &OpenAIPassthroughTranslator{}
}

// Feed parses one upstream "data: ..." payload. done is true once the
// "[DONE]" sentinel is observed.
func (t *OpenAIPassthroughTranslator) Feed(data string) (*convert.OpenAIStreamChunk, bool) {
	if data == "[DONE]" {
		return nil, true
	}

	var chunk convert.OpenAIStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil, false
	}
	if chunk.Usage != nil {
		t.usage = *chunk.Usage
	}
	return &chunk, false
}

// Usage returns the running usage tally observed so far.
func (t *OpenAIPassthroughTranslator) Usage() convert.OpenAIUsage {
	return t.usage
}
