// Package chat relays the assistant conversation to a text-generation
// service and threads the replies into the chat history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Wire roles of the generation service.
const (
	RoleUser  = genai.RoleUser
	RoleModel = genai.RoleModel
)

// Turn is one role-tagged transcript entry in service vocabulary.
type Turn struct {
	Role string
	Text string
}

// GenerateRequest is a complete generation call.
type GenerateRequest struct {
	System      string
	Turns       []Turn
	Temperature float64
	TopP        float64
}

// Generator produces one reply text for a transcript.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ErrEmptyReply is returned when the service answers without any text.
var ErrEmptyReply = errors.New("empty reply")

// GeminiClient calls generateContent through the genai SDK.
type GeminiClient struct {
	Model  string
	client *genai.Client
}

// NewGeminiClient builds a client against endpoint with the given
// per-request timeout. A trailing version segment such as /v1beta selects
// the API version; without one the SDK default applies.
func NewGeminiClient(ctx context.Context, endpoint, model, apiKey string, timeout time.Duration) (*GeminiClient, error) {
	base, version := splitEndpoint(endpoint)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    base,
			APIVersion: version,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{Model: model, client: client}, nil
}

// splitEndpoint separates a trailing API version segment from the base URL.
func splitEndpoint(endpoint string) (base, version string) {
	endpoint = strings.TrimRight(endpoint, "/")
	u, err := url.Parse(endpoint)
	if err != nil || u.Path == "" {
		return endpoint, ""
	}
	last := path.Base(u.Path)
	if len(last) < 2 || last[0] != 'v' || last[1] < '0' || last[1] > '9' {
		return endpoint, ""
	}
	u.Path = strings.TrimSuffix(u.Path, last)
	return u.String(), last
}

// Generate implements Generator.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(t.Role)))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
		TopP:        genai.Ptr(float32(req.TopP)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generateContent: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
