package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mercator-hq/jupiter/pkg/core/convert"
	"mercator-hq/jupiter/pkg/core/stream"
)

// dispatchByKind converts the client request into the instance's wire
// dialect once (conversion doesn't vary across instances of the same
// provider kind) and hands an AttemptFunc to the Retry Executor.
func (d *Dispatcher) dispatchByKind(ctx context.Context, snap *snapshot, kind ProviderKind, provider, sessionKey string, req *convert.OpenAIRequest) (*Attempt, *Instance, error) {
	switch kind {
	case ProviderAnthropic:
		anthReq, _, err := convert.OpenAIRequestToAnthropic(req, d.Cache, d.Vision)
		if err != nil {
			return nil, nil, &ConversionError{Stage: "openai-to-anthropic", Cause: err}
		}
		anthReq.Stream = req.Stream
		return d.Executor.Execute(ctx, snap, provider, sessionKey, d.attemptJSON(req.Model, req.Stream, anthReq))

	case ProviderGemini:
		gemReq, _, err := convert.OpenAIRequestToGemini(req, d.Vision)
		if err != nil {
			return nil, nil, &ConversionError{Stage: "openai-to-gemini", Cause: err}
		}
		return d.Executor.Execute(ctx, snap, provider, sessionKey, d.attemptJSON(req.Model, req.Stream, gemReq))

	case ProviderOpenAI, ProviderAzure, ProviderCustom, ProviderOpenAIResponse:
		return d.Executor.Execute(ctx, snap, provider, sessionKey, d.attemptJSON(req.Model, req.Stream, req))

	default:
		return nil, nil, &ProviderNotConfiguredError{Provider: provider}
	}
}

// attemptJSON builds an AttemptFunc that, for a non-streaming request,
// sends body and hands back the raw response bytes unparsed (the
// caller unmarshals them per-kind), and for a streaming request opens
// the body and hands back the live reader.
func (d *Dispatcher) attemptJSON(model string, streaming bool, body any) AttemptFunc {
	return func(ctx context.Context, inst *Instance) (*Attempt, error) {
		headers, err := BuildUpstreamHeaders(inst, d.OAuth)
		if err != nil {
			return nil, err
		}
		url := resolveUpstreamURL(inst, model, streaming)

		if streaming {
			body, err := d.Transport.OpenStream(ctx, inst.Config.Name, http.MethodPost, url, body, headers)
			if err != nil {
				return nil, err
			}
			return &Attempt{Result: body}, nil
		}

		resp, err := d.Transport.DoJSON(ctx, inst.Config.Name, http.MethodPost, url, body, headers, inst.Config.Timeout)
		if err != nil {
			return nil, err
		}
		return &Attempt{Result: resp.Body}, nil
	}
}

// resolveUpstreamURL fills in the {model} placeholder Gemini and
// Bedrock URLs carry and selects Gemini's streaming method name.
func resolveUpstreamURL(inst *Instance, model string, streaming bool) string {
	url := BuildUpstreamURL(inst)
	url = strings.ReplaceAll(url, "{model}", model)
	if inst.Config.Provider == ProviderGemini {
		if streaming {
			url = strings.Replace(url, ":generateContent", ":streamGenerateContent?alt=sse", 1)
		}
	}
	return url
}

// jsonResponse converts the upstream attempt's raw body back into the
// client-facing OpenAI dialect and writes it, then emits the terminal
// accounting event.
func (d *Dispatcher) jsonResponse(w http.ResponseWriter, requestID, principal, provider, instanceName, model, endpoint string, kind ProviderKind, attempt *Attempt, start time.Time) {
	raw, _ := attempt.Result.([]byte)

	var out *convert.OpenAIResponse
	var usage convert.OpenAIUsage
	var err error

	switch kind {
	case ProviderAnthropic:
		var anthResp convert.AnthropicResponse
		if err = json.Unmarshal(raw, &anthResp); err == nil {
			out, err = convert.AnthropicResponseToOpenAI(&anthResp)
			if out != nil {
				usage = out.Usage
			}
		}
	case ProviderGemini:
		var gemResp convert.GeminiResponse
		if err = json.Unmarshal(raw, &gemResp); err == nil {
			out, err = convert.GeminiResponseToOpenAI(&gemResp)
			if out != nil {
				usage = out.Usage
			}
		}
	default:
		out = &convert.OpenAIResponse{}
		err = json.Unmarshal(raw, out)
		if out != nil {
			usage = out.Usage
		}
	}

	if err != nil {
		d.emitAccounting(requestID, principal, provider, instanceName, model, endpoint, AccountingError, err, usage, start)
		d.writeError(w, endpoint, &ConversionError{Stage: "response-decode", Cause: err})
		return
	}

	out.ID = requestID
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)

	d.emitAccounting(requestID, principal, provider, instanceName, model, endpoint, AccountingSuccess, nil, usage, start)
}

// streamResponse drives the upstream SSE body through the translator
// matching kind, writing client-dialect chunks as they arrive. A
// mid-stream transport failure is surfaced as a synthetic finish
// chunk rather than an HTTP error, since headers are already sent.
func (d *Dispatcher) streamResponse(ctx context.Context, w http.ResponseWriter, requestID, principal, provider, instanceName, model, endpoint string, kind ProviderKind, attempt *Attempt, start time.Time) {
	body, _ := attempt.Result.(interface {
		Read(p []byte) (int, error)
		Close() error
	})
	if body == nil {
		d.emitAccounting(requestID, principal, provider, instanceName, model, endpoint, AccountingError, &ConversionError{Stage: "stream-open"}, convert.OpenAIUsage{}, start)
		d.writeError(w, endpoint, &ConversionError{Stage: "stream-open"})
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	reader := stream.NewEventReader(body)
	usage := convert.OpenAIUsage{}
	var streamErr error
	abort := func(err error) {
		streamErr = &StreamMidFailureError{Cause: err}
		finish := "error"
		writeSSEChunk(w, flusher, convert.OpenAIStreamChunk{ID: requestID, Object: "chat.completion.chunk", Created: time.Now().Unix(), Model: model,
			Choices: []convert.OpenAIStreamChoice{{Index: 0, FinishReason: &finish}}})
	}

	switch kind {
	case ProviderAnthropic:
		translator := stream.NewAnthropicToOpenAITranslator()
		for {
			event, err := reader.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					streamErr = &StreamMidFailureError{Cause: err}
					writeSSEChunk(w, flusher, translator.Abort())
				}
				break
			}
			chunks, done := translator.Feed(event)
			for _, chunk := range chunks {
				writeSSEChunk(w, flusher, chunk)
			}
			if done {
				break
			}
		}
		usage = translator.Usage()

	case ProviderGemini:
		translator := stream.NewGeminiToOpenAITranslator(model)
		for {
			event, err := reader.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					abort(err)
				}
				break
			}
			if event.Data == "" {
				continue
			}
			chunk, err := translator.Feed(event.Data)
			if err != nil {
				continue
			}
			if chunk != nil {
				writeSSEChunk(w, flusher, *chunk)
			}
		}
		usage = translator.Usage()

	default:
		translator := stream.NewOpenAIPassthroughTranslator()
		for {
			event, err := reader.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					abort(err)
				}
				break
			}
			chunk, done := translator.Feed(event.Data)
			if chunk != nil {
				writeSSEChunk(w, flusher, *chunk)
			}
			if done {
				break
			}
		}
		usage = translator.Usage()
	}

	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	if flusher != nil {
		flusher.Flush()
	}

	status := AccountingSuccess
	if streamErr != nil {
		status = AccountingError
	}
	d.emitAccounting(requestID, principal, provider, instanceName, model, endpoint, status, streamErr, usage, start)
}

func writeSSEChunk(w http.ResponseWriter, flusher http.Flusher, chunk convert.OpenAIStreamChunk) {
	encoded, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", encoded)
	if flusher != nil {
		flusher.Flush()
	}
}
