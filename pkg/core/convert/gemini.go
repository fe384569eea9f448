package convert

import (
	"encoding/json"
	"fmt"

	"mercator-hq/jupiter/pkg/core"
)

// GeminiRequest is the wire shape for Gemini's generateContent API,
// grounded on original_source's models/gemini.rs but written as Go
// structs rather than a port of the Rust serde types.
type GeminiRequest struct {
	Contents          []GeminiContent    `json:"contents"`
	SystemInstruction *GeminiContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenConfig   `json:"generationConfig,omitempty"`
	Tools             []GeminiTool       `json:"tools,omitempty"`
	ToolConfig        *GeminiToolConfig  `json:"toolConfig,omitempty"`
}

// GeminiContent is one turn: a role ("user"|"model") plus parts.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is a text span, an inline image, a function call, or a
// function response.
type GeminiPart struct {
	Text             string                `json:"text,omitempty"`
	InlineData       *GeminiInlineData     `json:"inlineData,omitempty"`
	FunctionCall     *GeminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *GeminiFunctionResult `json:"functionResponse,omitempty"`
}

// GeminiInlineData is a base64 image payload.
type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GeminiFunctionCall is a model-issued function call.
type GeminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// GeminiFunctionResult is a function's returned value, sent back as a
// user-role part.
type GeminiFunctionResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// GeminiGenConfig collapses OpenAI's generation knobs into Gemini's
// generationConfig object.
type GeminiGenConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

// GeminiTool wraps one or more function declarations.
type GeminiTool struct {
	FunctionDeclarations []GeminiFunctionDecl `json:"functionDeclarations"`
}

// GeminiFunctionDecl is one callable function's schema.
type GeminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// GeminiToolConfig controls function-calling mode.
type GeminiToolConfig struct {
	FunctionCallingConfig GeminiFunctionCallingConfig `json:"functionCallingConfig"`
}

// GeminiFunctionCallingConfig selects auto/any/none function calling.
type GeminiFunctionCallingConfig struct {
	Mode string `json:"mode"`
}

// GeminiResponse is the non-streaming generateContent response.
type GeminiResponse struct {
	Candidates    []GeminiCandidate   `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string              `json:"modelVersion,omitempty"`
}

// GeminiCandidate is one generated candidate.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

// GeminiUsageMetadata is Gemini's token accounting block.
type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// OpenAIRequestToGemini converts an OpenAI-dialect chat request into
// Gemini's generateContent wire format: a leading system message becomes
// Gemini's systemInstruction, tool definitions map to functionDeclarations,
// and roles are remapped to Gemini's user/model vocabulary.
func OpenAIRequestToGemini(req *OpenAIRequest, vision VisionPolicy) (*GeminiRequest, core.Warnings, error) {
	var warnings core.Warnings
	out := &GeminiRequest{}

	messageStart := 0
	if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
		parts, err := ParseContent(req.Messages[0].Content)
		if err != nil {
			return nil, warnings, fmt.Errorf("parsing system message: %w", err)
		}
		if text := TextOnly(parts); text != "" {
			out.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: text}}}
		}
		messageStart = 1
	}

	for _, msg := range req.Messages[messageStart:] {
		content, msgWarnings, err := convertMessageToGemini(msg, vision)
		warnings = append(warnings, msgWarnings...)
		if err != nil {
			return nil, warnings, err
		}
		out.Contents = append(out.Contents, content)
	}

	cfg := &GeminiGenConfig{StopSequences: req.Stop}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.TopP != nil {
		cfg.TopP = req.TopP
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "json_object":
			cfg.ResponseMimeType = "application/json"
		case "json_schema":
			cfg.ResponseMimeType = "application/json"
			cfg.ResponseSchema = req.ResponseFormat.JSONSchema
		}
	}
	out.GenerationConfig = cfg

	if len(req.Tools) > 0 {
		decls := make([]GeminiFunctionDecl, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = GeminiFunctionDecl{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			}
		}
		out.Tools = []GeminiTool{{FunctionDeclarations: decls}}
	}

	if len(req.ToolChoice) > 0 {
		mode, err := convertToolChoiceToGemini(req.ToolChoice)
		if err != nil {
			warnings.Add("tool_choice could not be translated to Gemini: %v", err)
		} else {
			out.ToolConfig = &GeminiToolConfig{FunctionCallingConfig: GeminiFunctionCallingConfig{Mode: mode}}
		}
	}

	for _, dropped := range droppedOpenAIOnlyParams(req) {
		warnings.Add("parameter %q is not supported by Gemini and was dropped", dropped)
	}

	return out, warnings, nil
}

func convertToolChoiceToGemini(raw json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "auto":
			return "AUTO", nil
		case "none":
			return "NONE", nil
		case "required":
			return "ANY", nil
		default:
			return "", fmt.Errorf("unknown tool_choice string %q", asString)
		}
	}
	var asObject struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil || asObject.Function.Name == "" {
		return "", fmt.Errorf("unsupported tool_choice shape for Gemini")
	}
	return "ANY", nil
}

func convertMessageToGemini(msg OpenAIMessage, vision VisionPolicy) (GeminiContent, core.Warnings, error) {
	var warnings core.Warnings
	role := "user"
	if msg.Role == "assistant" {
		role = "model"
	}

	var parts []GeminiPart

	if msg.Role == "tool" {
		textParts, err := ParseContent(msg.Content)
		if err != nil {
			return GeminiContent{}, warnings, err
		}
		var result map[string]any
		if err := json.Unmarshal([]byte(TextOnly(textParts)), &result); err != nil {
			result = map[string]any{"result": TextOnly(textParts)}
		}
		return GeminiContent{Role: "user", Parts: []GeminiPart{{
			FunctionResponse: &GeminiFunctionResult{Name: msg.ToolCallID, Response: result},
		}}}, warnings, nil
	}

	contentParts, err := ParseContent(msg.Content)
	if err != nil {
		return GeminiContent{}, warnings, err
	}
	for _, part := range contentParts {
		switch part.Type {
		case "text":
			parts = append(parts, GeminiPart{Text: part.Text})
		case "image_url":
			decoded, warnMsg, ok := ResolveImage(part.ImageURL, vision)
			if !ok {
				warnings.Add("%s", warnMsg)
				continue
			}
			parts = append(parts, GeminiPart{InlineData: &GeminiInlineData{MimeType: decoded.MediaType, Data: decoded.Data}})
		default:
			warnings.Add("content part of type %q dropped (unsupported in Gemini conversion)", part.Type)
		}
	}

	for _, tc := range msg.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			warnings.Add("tool call %q arguments could not be parsed as JSON: %v", tc.Function.Name, err)
			args = map[string]any{}
		}
		parts = append(parts, GeminiPart{FunctionCall: &GeminiFunctionCall{Name: tc.Function.Name, Args: args}})
	}

	return GeminiContent{Role: role, Parts: parts}, warnings, nil
}

// normalizeGeminiFinishReason maps Gemini's finishReason to OpenAI's
// finish_reason vocabulary.
func normalizeGeminiFinishReason(reason string) string {
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

// GeminiResponseToOpenAI converts a non-streaming Gemini
// generateContent response into an OpenAI chat-completion response.
func GeminiResponseToOpenAI(resp *GeminiResponse) (*OpenAIResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response has no candidates")
	}
	candidate := resp.Candidates[0]

	var content string
	var toolCalls []OpenAIToolCall
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			content += part.Text
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("marshalling function call args: %w", err)
			}
			toolCalls = append(toolCalls, OpenAIToolCall{
				Type: "function",
				Function: OpenAIFunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}

	finish := "stop"
	if candidate.FinishReason != "" {
		finish = normalizeGeminiFinishReason(candidate.FinishReason)
	}
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}

	out := &OpenAIResponse{
		Object: "chat.completion",
		Model:  resp.ModelVersion,
		Choices: []OpenAIChoice{{
			Index: 0,
			Message: OpenAIOutMsg{
				Role:      "assistant",
				Content:   content,
				ToolCalls: toolCalls,
			},
			FinishReason: finish,
		}},
	}
	if resp.UsageMetadata != nil {
		out.Usage = OpenAIUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}
