package convert

import (
	"encoding/json"
	"fmt"

	"mercator-hq/jupiter/pkg/core"
)

// AnthropicRequest is the wire shape sent to Anthropic's Messages API.
// Grounded on pkg/providers/anthropic/transform.go's AnthropicRequest,
// extended with tool_choice, system-as-blocks, and cache_control.
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        json.RawMessage    `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature,omitempty"`
	TopP          float64            `json:"top_p,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
	ToolChoice    json.RawMessage    `json:"tool_choice,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

// AnthropicMessage is one message; Content is a list of blocks.
type AnthropicMessage struct {
	Role    string                `json:"role"`
	Content []AnthropicContentBlock `json:"content"`
}

// AnthropicContentBlock is a text, image, tool_use, or tool_result block.
type AnthropicContentBlock struct {
	Type  string       `json:"type"`
	Text  string       `json:"text,omitempty"`
	Source *AnthropicImageSource `json:"source,omitempty"`

	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	CacheControl *AnthropicCacheControl `json:"cache_control,omitempty"`
}

// AnthropicImageSource is an inline base64 image payload.
type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// AnthropicCacheControl marks a block for Anthropic prompt caching.
type AnthropicCacheControl struct {
	Type string `json:"type"`
}

// AnthropicTool is a function tool definition.
type AnthropicTool struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]any         `json:"input_schema"`
	CacheControl *AnthropicCacheControl `json:"cache_control,omitempty"`
}

// AnthropicResponse is the non-streaming Messages API response.
type AnthropicResponse struct {
	ID           string                   `json:"id"`
	Type         string                   `json:"type"`
	Role         string                   `json:"role"`
	Content      []AnthropicContentBlock  `json:"content"`
	Model        string                   `json:"model"`
	StopReason   string                   `json:"stop_reason"`
	StopSequence string                   `json:"stop_sequence,omitempty"`
	Usage        AnthropicUsage           `json:"usage"`
}

// AnthropicUsage includes Anthropic's cache accounting fields.
type AnthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

var estimateTokensDivisor = 4

// estimateTokens is a chars/4 heuristic for deciding whether the system
// prompt crosses min_system_tokens, cheap enough to run on every request
// without a real tokenizer.
func estimateTokens(s string) int {
	return len(s) / estimateTokensDivisor
}

// clipTemperature clips to Anthropic's [0, 1] range, returning whether
// clipping occurred so the caller can emit a warning.
func clipTemperature(t float64) (float64, bool) {
	if t < 0 {
		return 0, true
	}
	if t > 1 {
		return 1, true
	}
	return t, false
}

// OpenAIRequestToAnthropic converts an OpenAI-dialect chat request into
// Anthropic's Messages wire format: the leading system message is split
// out into Anthropic's dedicated system field, tool definitions are
// reshaped into Anthropic's input_schema form, and cache_control /
// tool_choice / JSON-mode handling are layered on top.
func OpenAIRequestToAnthropic(req *OpenAIRequest, cache core.CachePolicy, vision VisionPolicy) (*AnthropicRequest, core.Warnings, error) {
	var warnings core.Warnings

	out := &AnthropicRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		StopSequences: req.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
		warnings.AddInfo("max_tokens defaulted to 4096 (required by Anthropic)")
	}
	if req.Temperature != nil {
		clipped, didClip := clipTemperature(*req.Temperature)
		out.Temperature = clipped
		if didClip {
			warnings.Add("temperature %.2f clipped to %.2f (Anthropic range is [0,1])", *req.Temperature, clipped)
		}
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}

	var systemText string
	messageStart := 0
	if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
		parts, err := ParseContent(req.Messages[0].Content)
		if err != nil {
			return nil, warnings, fmt.Errorf("parsing system message: %w", err)
		}
		systemText = TextOnly(parts)
		messageStart = 1
	}

	for _, msg := range req.Messages[messageStart:] {
		converted, msgWarnings, err := convertMessageToAnthropic(msg, vision)
		warnings = append(warnings, msgWarnings...)
		if err != nil {
			return nil, warnings, err
		}
		out.Messages = append(out.Messages, converted...)
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]AnthropicTool, len(req.Tools))
		for i, t := range req.Tools {
			out.Tools[i] = AnthropicTool{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				InputSchema: t.Function.Parameters,
			}
		}
	}

	if len(req.ToolChoice) > 0 {
		choice, err := convertToolChoiceToAnthropic(req.ToolChoice)
		if err != nil {
			warnings.Add("tool_choice could not be translated: %v", err)
		} else {
			out.ToolChoice = choice
		}
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "", "text":
		case "json_object":
			systemText = appendJSONInstruction(systemText, "Respond with a single valid JSON object.")
			warnings.Add("response_format=json_object approximated via system prompt injection")
		case "json_schema":
			systemText = appendJSONInstruction(systemText, "Respond with valid JSON matching this schema: "+string(req.ResponseFormat.JSONSchema))
			warnings.Add("response_format=json_schema enforced via prompt only, not a hard guarantee")
		}
	}

	for _, dropped := range droppedOpenAIOnlyParams(req) {
		warnings.Add("parameter %q is not supported by Anthropic and was dropped", dropped)
	}

	applyPromptCache(out, systemText, cache, &warnings)

	return out, warnings, nil
}

func droppedOpenAIOnlyParams(req *OpenAIRequest) []string {
	var dropped []string
	if req.Seed != nil {
		dropped = append(dropped, "seed")
	}
	if req.LogProbs != nil {
		dropped = append(dropped, "logprobs")
	}
	if len(req.LogitBias) > 0 {
		dropped = append(dropped, "logit_bias")
	}
	if req.PresencePenalty != nil {
		dropped = append(dropped, "presence_penalty")
	}
	if req.FrequencyPenalty != nil {
		dropped = append(dropped, "frequency_penalty")
	}
	if req.N != nil {
		dropped = append(dropped, "n")
	}
	if req.ServiceTier != nil {
		dropped = append(dropped, "service_tier")
	}
	return dropped
}

// applyPromptCache is the Anthropic-only prompt-cache injection:
// annotate the last system block and/or the last tool with
// cache_control:{type:"ephemeral"} when the policy's conditions are met.
func applyPromptCache(out *AnthropicRequest, systemText string, cache core.CachePolicy, warnings *core.Warnings) {
	if systemText != "" {
		block := AnthropicContentBlock{Type: "text", Text: systemText}
		if cache.AutoCacheSystem && estimateTokens(systemText) >= cache.MinSystemTokens {
			block.CacheControl = &AnthropicCacheControl{Type: "ephemeral"}
			warnings.AddInfo("system prompt annotated with ephemeral cache_control")
		}
		encoded, err := json.Marshal([]AnthropicContentBlock{block})
		if err == nil {
			out.System = encoded
		}
	}

	if cache.AutoCacheTools && len(out.Tools) > 0 {
		out.Tools[len(out.Tools)-1].CacheControl = &AnthropicCacheControl{Type: "ephemeral"}
	}
}

func appendJSONInstruction(system, instruction string) string {
	if system == "" {
		return instruction
	}
	return system + "\n\n" + instruction
}

func convertMessageToAnthropic(msg OpenAIMessage, vision VisionPolicy) ([]AnthropicMessage, core.Warnings, error) {
	var warnings core.Warnings

	if msg.Role == "tool" {
		return []AnthropicMessage{{
			Role: "user",
			Content: []AnthropicContentBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   TextOnly(mustParseContent(msg.Content)),
			}},
		}}, warnings, nil
	}

	var blocks []AnthropicContentBlock

	parts, err := ParseContent(msg.Content)
	if err != nil {
		return nil, warnings, fmt.Errorf("parsing message content: %w", err)
	}
	for _, part := range parts {
		switch part.Type {
		case "text":
			blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: part.Text})
		case "image_url":
			decoded, warnMsg, ok := ResolveImage(part.ImageURL, vision)
			if !ok {
				warnings.Add("%s", warnMsg)
				continue
			}
			blocks = append(blocks, AnthropicContentBlock{
				Type: "image",
				Source: &AnthropicImageSource{
					Type:      "base64",
					MediaType: decoded.MediaType,
					Data:      decoded.Data,
				},
			})
		default:
			warnings.Add("content part of type %q dropped (unsupported in Anthropic conversion)", part.Type)
		}
	}

	if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				warnings.Add("tool call %q arguments could not be parsed as JSON: %v", tc.Function.Name, err)
				input = map[string]any{}
			}
			blocks = append(blocks, AnthropicContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
	}

	return []AnthropicMessage{{Role: msg.Role, Content: blocks}}, warnings, nil
}

func mustParseContent(raw json.RawMessage) []ContentPart {
	parts, err := ParseContent(raw)
	if err != nil {
		return nil
	}
	return parts
}

// convertToolChoiceToAnthropic maps OpenAI's tool_choice encoding
// ("auto"|"none"|"required"|{function:{name}}) to Anthropic's
// {type:"auto"|"none"|"any"|"tool", name?}.
func convertToolChoiceToAnthropic(raw json.RawMessage) (json.RawMessage, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "auto":
			return json.Marshal(map[string]string{"type": "auto"})
		case "none":
			return json.Marshal(map[string]string{"type": "none"})
		case "required":
			return json.Marshal(map[string]string{"type": "any"})
		default:
			return nil, fmt.Errorf("unknown tool_choice string %q", asString)
		}
	}

	var asObject struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return nil, err
	}
	if asObject.Function.Name == "" {
		return nil, fmt.Errorf("tool_choice object missing function.name")
	}
	return json.Marshal(map[string]string{"type": "tool", "name": asObject.Function.Name})
}

// normalizeStopReason maps Anthropic's stop_reason to OpenAI's
// finish_reason vocabulary.
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

// AnthropicResponseToOpenAI converts a non-streaming Anthropic Messages
// response into an OpenAI chat-completion response, collapsing
// Anthropic's content-block list into one assistant message plus any
// tool_use blocks turned into OpenAI tool calls.
func AnthropicResponseToOpenAI(resp *AnthropicResponse) (*OpenAIResponse, error) {
	var content string
	var toolCalls []OpenAIToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("marshalling tool_use input: %w", err)
			}
			toolCalls = append(toolCalls, OpenAIToolCall{
				ID:   block.ID,
				Type: "function",
				Function: OpenAIFunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		}
	}

	finish := normalizeStopReason(resp.StopReason)

	return &OpenAIResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Model:   resp.Model,
		Choices: []OpenAIChoice{{
			Index: 0,
			Message: OpenAIOutMsg{
				Role:      "assistant",
				Content:   content,
				ToolCalls: toolCalls,
			},
			FinishReason: finish,
		}},
		Usage: OpenAIUsage{
			PromptTokens:        resp.Usage.InputTokens,
			CompletionTokens:    resp.Usage.OutputTokens,
			TotalTokens:         resp.Usage.InputTokens + resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:     resp.Usage.CacheReadInputTokens,
		},
	}, nil
}
