package convert

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VisionPolicy controls how remote (non data:) image URLs are handled
// during OpenAI -> Anthropic/Gemini conversion.
type VisionPolicy struct {
	// AllowRemoteFetch enables fetching http(s) image URLs. Default
	// false: remote URLs are rejected with a warning instead.
	AllowRemoteFetch bool
	FetchTimeout     time.Duration
	Client           *http.Client
}

// DefaultVisionPolicy rejects remote fetches: a remote image_url is
// turned into a warning rather than a network call unless explicitly
// enabled.
func DefaultVisionPolicy() VisionPolicy {
	return VisionPolicy{AllowRemoteFetch: false, FetchTimeout: 5 * time.Second}
}

// DecodedImage is a base64-encoded image ready for an upstream's
// image content block.
type DecodedImage struct {
	MediaType string
	Data      string // base64-encoded
}

// ResolveImage turns an ImageURL into a DecodedImage, either by
// decoding an inline data: URL or by fetching a remote URL if the
// policy allows it. ok is false (with a warning already explaining
// why) when the image cannot be represented.
func ResolveImage(img *ImageURL, policy VisionPolicy) (*DecodedImage, string, bool) {
	if img == nil || img.URL == "" {
		return nil, "image_url part has no URL", false
	}

	if strings.HasPrefix(img.URL, "data:") {
		decoded, err := decodeDataURL(img.URL)
		if err != nil {
			return nil, fmt.Sprintf("image data URL could not be decoded: %v", err), false
		}
		return decoded, "", true
	}

	if strings.HasPrefix(img.URL, "http://") || strings.HasPrefix(img.URL, "https://") {
		if !policy.AllowRemoteFetch {
			return nil, "remote image URL rejected by policy (network fetch disabled): " + img.URL, false
		}
		decoded, err := fetchAndEncode(img.URL, policy)
		if err != nil {
			return nil, fmt.Sprintf("failed to fetch remote image %s: %v", img.URL, err), false
		}
		return decoded, "", true
	}

	return nil, "unsupported image_url scheme: " + img.URL, false
}

// decodeDataURL parses "data:<media-type>;base64,<data>".
func decodeDataURL(url string) (*DecodedImage, error) {
	rest := strings.TrimPrefix(url, "data:")
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed data URL")
	}
	meta, data := parts[0], parts[1]
	mediaType := strings.TrimSuffix(meta, ";base64")
	if !strings.HasSuffix(meta, ";base64") {
		// Non-base64 data URLs (rare for images) are re-encoded so the
		// upstream always receives base64, per the Anthropic/Gemini
		// image block contract.
		decoded, err := base64DecodeURLText(data)
		if err != nil {
			return nil, err
		}
		return &DecodedImage{MediaType: mediaType, Data: decoded}, nil
	}
	// Validate it is actually base64 before handing it upstream.
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return &DecodedImage{MediaType: mediaType, Data: data}, nil
}

func base64DecodeURLText(raw string) (string, error) {
	unescaped := strings.ReplaceAll(raw, "%20", " ")
	return base64.StdEncoding.EncodeToString([]byte(unescaped)), nil
}

func fetchAndEncode(url string, policy VisionPolicy) (*DecodedImage, error) {
	client := policy.Client
	if client == nil {
		timeout := policy.FetchTimeout
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20)) // 20MB cap
	if err != nil {
		return nil, err
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	return &DecodedImage{
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(body),
	}, nil
}
