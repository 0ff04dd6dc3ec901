package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"boq-estimator/internal/config"
	"boq-estimator/internal/models"
	"boq-estimator/internal/provider"
	"boq-estimator/internal/provider/sse"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeEvent = "text/event-stream"
	userAgent        = "boq-estimator/0.1"
	streamDone       = "[DONE]"
)

// Provider implements the Provider interface for OpenAI-compatible chat APIs.
type Provider struct {
	name    string
	apiKey  string
	headers map[string]string
	client  *http.Client
	chatURL string
}

// New creates a new OpenAI provider.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		name:    name,
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		client:  client,
		chatURL: baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	payload, err := buildChatPayload(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := p.newRequest(ctx, payload, contentTypeJSON)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, p.parseAPIError(httpResp)
	}

	var providerResp chatResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, err
	}

	return providerResp.toCompletion()
}

func (p *Provider) Stream(ctx context.Context, req models.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		payload, err := buildChatPayload(req)
		if err != nil {
			yield("", err)
			return
		}
		payload.Stream = true

		httpReq, err := p.newRequest(ctx, payload, contentTypeEvent)
		if err != nil {
			yield("", err)
			return
		}

		httpResp, err := p.client.Do(httpReq)
		if err != nil {
			yield("", fmt.Errorf("openai stream request failed: %w", err))
			return
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 400 {
			yield("", p.parseAPIError(httpResp))
			return
		}

		for ev, err := range sse.Events(httpResp.Body) {
			if err != nil {
				yield("", err)
				return
			}
			if ev.Data == streamDone {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				yield("", fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if chunk.Error != nil {
				yield("", &provider.APIError{
					Provider: p.name,
					Status:   httpResp.StatusCode,
					Type:     chunk.Error.Type,
					Message:  chunk.Error.Message,
				})
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
				continue
			}
			if !yield(*chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

func (p *Provider) newRequest(ctx context.Context, payload any, accept string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// openAIMessage carries either a plain string or a list of content parts.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func buildChatPayload(req models.CompletionRequest) (chatPayload, error) {
	if err := provider.ValidateRequest(req); err != nil {
		return chatPayload{}, err
	}

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if !msg.HasImage() {
			messages = append(messages, openAIMessage{Role: string(msg.Role), Content: msg.Text()})
			continue
		}

		parts := make([]contentPart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case models.PartText:
				parts = append(parts, contentPart{Type: "text", Text: part.Text})
			case models.PartImage:
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: part.Image.DataURL()}})
			default:
				return chatPayload{}, fmt.Errorf("%w: content part %q", provider.ErrUnsupportedOperation, part.Type)
			}
		}
		messages = append(messages, openAIMessage{Role: string(msg.Role), Content: parts})
	}

	payload := chatPayload{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		v := req.MaxTokens
		payload.MaxTokens = &v
	}

	return payload, nil
}

type chatResponse struct {
	ID      string          `json:"id"`
	Choices []chatChoice    `json:"choices"`
	Usage   *usageBlock     `json:"usage,omitempty"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (r chatResponse) toCompletion() (*models.Completion, error) {
	if len(r.Choices) == 0 {
		return nil, errors.New("openai response did not include choices")
	}

	choice := r.Choices[0]
	completion := &models.Completion{
		ID:           r.ID,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if r.Usage != nil {
		completion.Usage = models.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	return completion, nil
}

type streamChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiErrorObject `json:"error,omitempty"`
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (p *Provider) parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &provider.APIError{
			Provider: p.name,
			Status:   resp.StatusCode,
			Type:     apiErr.Error.Type,
			Message:  apiErr.Error.Message,
		}
	}

	return &provider.APIError{
		Provider: p.name,
		Status:   resp.StatusCode,
		Message:  strings.TrimSpace(string(body)),
	}
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
