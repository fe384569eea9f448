package stream

import "testing"

func TestOpenAIPassthroughTranslatorForwardsChunk(t *testing.T) {
	tr := NewOpenAIPassthroughTranslator()
	chunk, done := tr.Feed(`{"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"hi"}}]}`)
	if done {
		t.Fatal("expected done=false for a regular chunk")
	}
	if chunk.ID != "chatcmpl-1" || chunk.Choices[0].Delta.Content != "hi" {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
}

func TestOpenAIPassthroughTranslatorDoneSentinel(t *testing.T) {
	tr := NewOpenAIPassthroughTranslator()
	chunk, done := tr.Feed("[DONE]")
	if !done || chunk != nil {
		t.Fatalf("expected done=true and nil chunk for [DONE], got chunk=%v done=%v", chunk, done)
	}
}

func TestOpenAIPassthroughTranslatorTracksUsage(t *testing.T) {
	tr := NewOpenAIPassthroughTranslator()
	tr.Feed(`{"id":"c1","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	if tr.Usage().TotalTokens != 7 {
		t.Fatalf("expected usage total 7, got %d", tr.Usage().TotalTokens)
	}
}

func TestOpenAIPassthroughTranslatorMalformedChunkIgnored(t *testing.T) {
	tr := NewOpenAIPassthroughTranslator()
	chunk, done := tr.Feed("not json")
	if done || chunk != nil {
		t.Fatalf("expected a malformed chunk to be silently dropped, got chunk=%v done=%v", chunk, done)
	}
}
