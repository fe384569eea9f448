package stream

import "testing"

func TestGeminiTranslatorEmitsTextAndRoleOnce(t *testing.T) {
	tr := NewGeminiToOpenAITranslator("gemini-1.5-pro")

	chunk, err := tr.Feed(`{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if chunk.Choices[0].Delta.Content != "hi" || chunk.Choices[0].Delta.Role != "assistant" {
		t.Fatalf("unexpected first chunk: %+v", chunk)
	}

	chunk2, err := tr.Feed(`{"candidates":[{"content":{"parts":[{"text":" there"}]}}]}`)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if chunk2.Choices[0].Delta.Role != "" {
		t.Fatalf("expected role empty on later chunks, got %q", chunk2.Choices[0].Delta.Role)
	}
}

func TestGeminiTranslatorSetsFinishReasonAndUsageOnLastChunk(t *testing.T) {
	tr := NewGeminiToOpenAITranslator("gemini-1.5-pro")

	chunk, err := tr.Feed(`{"candidates":[{"content":{"parts":[{"text":"done"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if chunk.Choices[0].FinishReason == nil || *chunk.Choices[0].FinishReason != "stop" {
		t.Fatalf("expected finish_reason=stop, got %v", chunk.Choices[0].FinishReason)
	}
	if chunk.Usage == nil || chunk.Usage.TotalTokens != 5 {
		t.Fatalf("expected usage total 5, got %+v", chunk.Usage)
	}
}

func TestGeminiTranslatorNoCandidatesReturnsNilChunk(t *testing.T) {
	tr := NewGeminiToOpenAITranslator("gemini-1.5-pro")
	chunk, err := tr.Feed(`{"candidates":[]}`)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if chunk != nil {
		t.Fatalf("expected a nil chunk for an empty candidates list, got %+v", chunk)
	}
}

func TestGeminiTranslatorFunctionCallProducesToolCall(t *testing.T) {
	tr := NewGeminiToOpenAITranslator("gemini-1.5-pro")
	chunk, err := tr.Feed(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"NYC"}}}]}}]}`)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(chunk.Choices[0].Delta.ToolCalls) != 1 || chunk.Choices[0].Delta.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("unexpected tool calls: %+v", chunk.Choices[0].Delta.ToolCalls)
	}
}

func TestGeminiTranslatorMalformedJSONErrors(t *testing.T) {
	tr := NewGeminiToOpenAITranslator("gemini-1.5-pro")
	if _, err := tr.Feed(`not json`); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
