package stream

import (
	"encoding/json"

	"mercator-hq/jupiter/pkg/core/convert"
)

// GeminiToOpenAITranslator converts Gemini's streamGenerateContent
// event sequence (full response objects separated by blank lines) into
// OpenAI stream chunks. Each event's parts are incremental, matching
// Gemini's actual streaming contract.
type GeminiToOpenAITranslator struct {
	roleEmitted bool
	model       string
	usage       convert.OpenAIUsage
}

// NewGeminiToOpenAITranslator creates a translator for one stream.
func NewGeminiToOpenAITranslator(model string) *GeminiToOpenAITranslator {
	return &GeminiToOpenAITranslator{model: model}
}

// Feed parses one Gemini event payload (a full GenerateContentResponse
// JSON object) into zero or one OpenAI stream chunk.
func (t *GeminiToOpenAITranslator) Feed(data string) (*convert.OpenAIStreamChunk, error) {
	var resp convert.GeminiResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return nil, err
	}
	if resp.UsageMetadata != nil {
		t.usage = convert.OpenAIUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	if len(resp.Candidates) == 0 {
		return nil, nil
	}
	candidate := resp.Candidates[0]

	chunk := &convert.OpenAIStreamChunk{
		Object:  "chat.completion.chunk",
		Model:   t.model,
		Choices: []convert.OpenAIStreamChoice{{Index: 0}},
	}
	if !t.roleEmitted {
		chunk.Choices[0].Delta.Role = "assistant"
		t.roleEmitted = true
	}

	var text string
	var toolCalls []convert.OpenAIToolCall
	for _, part := range candidate.Content.Parts {
		text += part.Text
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, err
			}
			toolCalls = append(toolCalls, convert.OpenAIToolCall{
				Type: "function",
				Function: convert.OpenAIFunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}
	chunk.Choices[0].Delta.Content = text
	chunk.Choices[0].Delta.ToolCalls = toolCalls

	if candidate.FinishReason != "" {
		finish := normalizeGeminiFinish(candidate.FinishReason)
		chunk.Choices[0].FinishReason = &finish
		usage := t.usage
		chunk.Usage = &usage
	}

	return chunk, nil
}

// Usage returns the running usage tally.
func (t *GeminiToOpenAITranslator) Usage() convert.OpenAIUsage {
	return t.usage
}

func normalizeGeminiFinish(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY":
		return "content_filter"
	default:
		return reason
	}
}
