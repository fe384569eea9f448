package stream

import "testing"

func TestAnthropicTranslatorMessageStartSetsIDAndModel(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	chunks, done := tr.Feed(&RawEvent{Type: "message_start", Data: `{"type":"message_start","message":{"id":"msg_1","model":"claude-3","usage":{"input_tokens":12}}}`})
	if done || len(chunks) != 0 {
		t.Fatalf("message_start should not emit a chunk, got %v done=%v", chunks, done)
	}
	if tr.Usage().PromptTokens != 12 {
		t.Fatalf("expected prompt tokens 12, got %d", tr.Usage().PromptTokens)
	}
}

func TestAnthropicTranslatorTextDeltaEmitsContentAndRoleOnce(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	tr.Feed(&RawEvent{Type: "content_block_start", Data: `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`})

	chunks, _ := tr.Feed(&RawEvent{Type: "content_block_delta", Data: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`})
	if len(chunks) != 1 || chunks[0].Choices[0].Delta.Content != "hi" {
		t.Fatalf("unexpected first chunk: %+v", chunks)
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Fatalf("expected role=assistant on the first emitted chunk, got %q", chunks[0].Choices[0].Delta.Role)
	}

	chunks2, _ := tr.Feed(&RawEvent{Type: "content_block_delta", Data: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`})
	if len(chunks2) != 1 || chunks2[0].Choices[0].Delta.Role != "" {
		t.Fatalf("expected role to be empty on subsequent chunks, got %q", chunks2[0].Choices[0].Delta.Role)
	}
}

func TestAnthropicTranslatorToolUseAccumulatesArguments(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	tr.Feed(&RawEvent{Type: "content_block_start", Data: `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tool_1","name":"get_weather"}}`})

	chunks, _ := tr.Feed(&RawEvent{Type: "content_block_delta", Data: `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`})
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	tc := chunks[0].Choices[0].Delta.ToolCalls
	if len(tc) != 1 || tc[0].ID != "tool_1" || tc[0].Function.Name != "get_weather" {
		t.Fatalf("unexpected tool call delta: %+v", tc)
	}
	if tc[0].Function.Arguments != `{"city":` {
		t.Fatalf("expected the partial JSON fragment forwarded as-is, got %q", tc[0].Function.Arguments)
	}
}

func TestAnthropicTranslatorMessageDeltaSetsFinishReasonAndUsage(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	tr.Feed(&RawEvent{Type: "message_start", Data: `{"type":"message_start","message":{"id":"msg_1","model":"claude-3","usage":{"input_tokens":10}}}`})

	chunks, done := tr.Feed(&RawEvent{Type: "message_delta", Data: `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`})
	if done {
		t.Fatal("message_delta should not itself signal completion")
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Choices[0].FinishReason == nil || *chunks[0].Choices[0].FinishReason != "stop" {
		t.Fatalf("expected finish_reason=stop, got %v", chunks[0].Choices[0].FinishReason)
	}
	if chunks[0].Usage == nil || chunks[0].Usage.TotalTokens != 15 {
		t.Fatalf("expected total tokens 15, got %+v", chunks[0].Usage)
	}
}

func TestAnthropicTranslatorMessageStopSignalsDone(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	_, done := tr.Feed(&RawEvent{Type: "message_stop", Data: `{"type":"message_stop"}`})
	if !done {
		t.Fatal("expected message_stop to signal the stream is complete")
	}
}

func TestAnthropicTranslatorAbortEmitsErrorFinishReason(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	chunk := tr.Abort()
	if chunk.Choices[0].FinishReason == nil || *chunk.Choices[0].FinishReason != "error" {
		t.Fatalf("expected Abort to set finish_reason=error, got %v", chunk.Choices[0].FinishReason)
	}
}

func TestAnthropicTranslatorMalformedEventIsSkippedNotFatal(t *testing.T) {
	tr := NewAnthropicToOpenAITranslator()
	chunks, done := tr.Feed(&RawEvent{Type: "content_block_delta", Data: `not json`})
	if done || len(chunks) != 0 {
		t.Fatalf("expected a malformed event to be skipped without aborting the stream, got chunks=%v done=%v", chunks, done)
	}
}
