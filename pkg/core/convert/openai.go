// Package convert translates chat-completion-shaped requests and
// responses between the OpenAI, Anthropic, and Gemini wire dialects,
// including tool calls, vision content, and JSON mode. The request
// converters return a core.Warnings value alongside their result for
// fields they cannot represent in the target dialect. Not every loss is
// reported: the response converters return no warnings, image parts in
// system and tool messages are dropped without a warning, and a named
// tool_choice sent to Gemini loses the function name without a warning.
package convert

import (
	"encoding/json"
)

// OpenAIRequest is the client-facing OpenAI chat-completions request
// shape. Content is left as json.RawMessage because OpenAI allows both
// a plain string and an array of content parts.
type OpenAIRequest struct {
	Model            string          `json:"model"`
	Messages         []OpenAIMessage `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Tools            []OpenAITool    `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	LogProbs         *bool           `json:"logprobs,omitempty"`
	LogitBias        map[string]int  `json:"logit_bias,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	N                *int            `json:"n,omitempty"`
	ServiceTier      *string         `json:"service_tier,omitempty"`
	User             string          `json:"user,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// OpenAIMessage is one message in an OpenAI request. Content may be a
// bare string or an array of ContentPart; both are handled by
// ParseContent below.
type OpenAIMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ContentPart is one element of an OpenAI multi-part message content
// array: a text span, an image reference, or (on tool messages) a tool
// result rendered as text.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL is the image_url content-part payload: either a data: URL
// with inline base64 or an http(s) URL to fetch.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// OpenAITool is a function tool definition.
type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIFunctionSpec `json:"function"`
}

// OpenAIFunctionSpec describes one callable function.
type OpenAIFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// OpenAIToolCall is an assistant-emitted tool invocation.
type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIFunctionCall `json:"function"`
}

// OpenAIFunctionCall carries the called function's name and its
// arguments as a JSON-encoded string (OpenAI's wire convention).
type OpenAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResponseFormat selects plain text, a bare JSON object, or a JSON
// schema-constrained response.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ParseContent normalizes a message's raw JSON content into a list of
// parts, whether it was sent as a bare string or an array.
func ParseContent(raw json.RawMessage) ([]ContentPart, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []ContentPart{{Type: "text", Text: asString}}, nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// TextOnly concatenates the text parts of a content slice, ignoring
// image parts. Used where a dialect cannot represent images at all.
func TextOnly(parts []ContentPart) string {
	var text string
	for _, p := range parts {
		if p.Type == "text" {
			text += p.Text
		}
	}
	return text
}

// OpenAIResponse is the client-facing non-streaming response shape.
type OpenAIResponse struct {
	ID                string         `json:"id"`
	Object            string         `json:"object"`
	Created           int64          `json:"created"`
	Model             string         `json:"model"`
	Choices           []OpenAIChoice `json:"choices"`
	Usage             OpenAIUsage    `json:"usage"`
	SystemFingerprint string         `json:"system_fingerprint,omitempty"`
}

// OpenAIChoice is one completion choice.
type OpenAIChoice struct {
	Index        int          `json:"index"`
	Message      OpenAIOutMsg `json:"message"`
	FinishReason string       `json:"finish_reason"`
}

// OpenAIOutMsg is the assistant message in a non-streaming response.
type OpenAIOutMsg struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
}

// OpenAIUsage carries token counts, extended with Anthropic's
// cache_creation/cache_read fields so the accounting event keeps that
// detail even when the client-visible dialect is OpenAI's.
type OpenAIUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// OpenAIStreamChunk is one SSE chunk of a streaming response.
type OpenAIStreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIStreamChoice `json:"choices"`
	Usage   *OpenAIUsage       `json:"usage,omitempty"`
}

// OpenAIStreamChoice is one choice within a streaming chunk.
type OpenAIStreamChoice struct {
	Index        int          `json:"index"`
	Delta        OpenAIDelta  `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// OpenAIDelta is the incremental content of a streaming chunk.
type OpenAIDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []OpenAIToolCall `json:"tool_calls,omitempty"`
}
