package stream

import (
	"encoding/json"
	"log/slog"

	"mercator-hq/jupiter/pkg/core/convert"
)

// anthropicEvent is the subset of Anthropic's stream event shapes the
// translator needs. Grounded on
// pkg/providers/anthropic/transform.go's AnthropicStreamEvent, but kept
// local to this package since this translator (unlike a same-dialect
// passthrough) needs the full content-block payload to track the
// tool-call index cursor.
type anthropicEvent struct {
	Type string `json:"type"`

	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message,omitempty"`

	Index        int `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`

	Usage *struct {
		OutputTokens             int `json:"output_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	} `json:"usage,omitempty"`
}

// blockCursor tracks one content block's translation state across
// content_block_start/delta/stop events.
type blockCursor struct {
	kind        string // "text" or "tool_use"
	toolCallIdx int
	toolID      string
	toolName    string
	jsonArgs    string
}

// AnthropicToOpenAITranslator is the stateful per-stream translator: a
// content-block index cursor, a first-chunk role-emission flag, and a
// tool-call JSON-delta accumulator, plus a running usage tally.
type AnthropicToOpenAITranslator struct {
	id           string
	model        string
	roleEmitted  bool
	blocks       map[int]*blockCursor
	nextToolIdx  int
	usage        convert.OpenAIUsage
	finishReason string
	logger       *slog.Logger
}

// NewAnthropicToOpenAITranslator creates a translator for one stream.
func NewAnthropicToOpenAITranslator() *AnthropicToOpenAITranslator {
	return &AnthropicToOpenAITranslator{
		blocks: make(map[int]*blockCursor),
		logger: slog.Default().With("component", "core.stream.anthropic_to_openai"),
	}
}

// Feed consumes one raw SSE event and returns zero or more OpenAI
// stream chunks to forward to the client. A parse error on a single
// upstream event is logged and skipped rather than aborting the whole
// stream.
func (t *AnthropicToOpenAITranslator) Feed(raw *RawEvent) ([]convert.OpenAIStreamChunk, bool) {
	var event anthropicEvent
	if raw.Data != "" {
		if err := json.Unmarshal([]byte(raw.Data), &event); err != nil {
			t.logger.Warn("failed to parse stream event, skipping", "error", err)
			return nil, false
		}
	}
	if event.Type == "" {
		event.Type = raw.Type
	}

	switch event.Type {
	case "message_start":
		if event.Message != nil {
			t.id = event.Message.ID
			t.model = event.Message.Model
			t.usage.PromptTokens = event.Message.Usage.InputTokens
		}
		return nil, false

	case "content_block_start":
		if event.ContentBlock == nil {
			return nil, false
		}
		cursor := &blockCursor{kind: event.ContentBlock.Type}
		if event.ContentBlock.Type == "tool_use" {
			cursor.toolCallIdx = t.nextToolIdx
			cursor.toolID = event.ContentBlock.ID
			cursor.toolName = event.ContentBlock.Name
			t.nextToolIdx++
		}
		t.blocks[event.Index] = cursor
		return nil, false

	case "content_block_delta":
		return t.feedDelta(event), false

	case "content_block_stop":
		delete(t.blocks, event.Index)
		return nil, false

	case "message_delta":
		chunk := t.emptyChunk()
		if event.Delta != nil && event.Delta.StopReason != "" {
			t.finishReason = normalizeStopReason(event.Delta.StopReason)
			finish := t.finishReason
			chunk.Choices[0].FinishReason = &finish
		}
		if event.Usage != nil {
			t.usage.CompletionTokens = event.Usage.OutputTokens
			t.usage.CacheCreationTokens = event.Usage.CacheCreationInputTokens
			t.usage.CacheReadTokens = event.Usage.CacheReadInputTokens
			t.usage.TotalTokens = t.usage.PromptTokens + t.usage.CompletionTokens
			usage := t.usage
			chunk.Usage = &usage
		}
		return []convert.OpenAIStreamChunk{chunk}, false

	case "message_stop":
		return nil, true

	case "ping":
		return nil, false

	default:
		t.logger.Debug("unhandled stream event type", "type", event.Type)
		return nil, false
	}
}

func (t *AnthropicToOpenAITranslator) feedDelta(event anthropicEvent) []convert.OpenAIStreamChunk {
	if event.Delta == nil {
		return nil
	}
	cursor := t.blocks[event.Index]

	chunk := t.emptyChunk()

	switch event.Delta.Type {
	case "text_delta":
		if event.Delta.Text == "" {
			return nil
		}
		chunk.Choices[0].Delta.Content = event.Delta.Text
	case "input_json_delta":
		if cursor == nil {
			return nil
		}
		cursor.jsonArgs += event.Delta.PartialJSON
		chunk.Choices[0].Delta.ToolCalls = []convert.OpenAIToolCall{{
			ID:   cursor.toolID,
			Type: "function",
			Function: convert.OpenAIFunctionCall{
				Name:      cursor.toolName,
				Arguments: event.Delta.PartialJSON,
			},
		}}
	default:
		return nil
	}

	return []convert.OpenAIStreamChunk{chunk}
}

// emptyChunk builds a chunk stub with the role set only on the first
// emission of the stream.
func (t *AnthropicToOpenAITranslator) emptyChunk() convert.OpenAIStreamChunk {
	chunk := convert.OpenAIStreamChunk{
		ID:     t.id,
		Object: "chat.completion.chunk",
		Model:  t.model,
		Choices: []convert.OpenAIStreamChoice{{Index: 0}},
	}
	if !t.roleEmitted {
		chunk.Choices[0].Delta.Role = "assistant"
		t.roleEmitted = true
	}
	return chunk
}

// Usage returns the running usage tally, used by the dispatch handler
// to populate the terminal accounting event.
func (t *AnthropicToOpenAITranslator) Usage() convert.OpenAIUsage {
	return t.usage
}

// Abort builds the synthetic terminal chunk emitted when the upstream
// transport fails mid-stream: a chunk with finish_reason="error", after
// which the caller writes "data: [DONE]" and closes without retrying.
func (t *AnthropicToOpenAITranslator) Abort() convert.OpenAIStreamChunk {
	chunk := t.emptyChunk()
	errReason := "error"
	chunk.Choices[0].FinishReason = &errReason
	return chunk
}

func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}
