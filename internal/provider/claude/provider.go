package claude

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
	apiVersion       = "2023-06-01"
)

// Provider implements Anthropic Claude Messages API interactions.
type Provider struct {
	name     string
	apiKey   string
	headers  map[string]string
	client   *http.Client
	messages string
}

// New constructs a Claude provider instance.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		name:     name,
		apiKey:   cfg.APIKey,
		headers:  cfg.Headers,
		client:   client,
		messages: baseURL + "/v1/messages",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	payload, err := buildMessagePayload(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := p.newRequest(ctx, payload, contentTypeJSON)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude messages request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, p.parseAPIError(httpResp)
	}

	var providerResp messageResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, err
	}

	return providerResp.toCompletion()
}

func (p *Provider) Stream(ctx context.Context, req models.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		payload, err := buildMessagePayload(req)
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
			yield("", fmt.Errorf("claude stream request failed: %w", err))
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

			var event streamEvent
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				yield("", fmt.Errorf("decode stream event %q: %w", ev.Name, err))
				return
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta.Type != "text_delta" {
					continue
				}
				if !yield(event.Delta.Text, nil) {
					return
				}
			case "error":
				yield("", &provider.APIError{
					Provider: p.name,
					Status:   httpResp.StatusCode,
					Type:     event.Error.Type,
					Message:  event.Error.Message,
				})
				return
			case "message_stop":
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messages, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type messagePayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func buildMessagePayload(req models.CompletionRequest) (messagePayload, error) {
	if err := provider.ValidateRequest(req); err != nil {
		return messagePayload{}, err
	}

	messages := make([]message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			continue
		case models.RoleUser, models.RoleAssistant:
			blocks := make([]contentBlock, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				switch part.Type {
				case models.PartText:
					if strings.TrimSpace(part.Text) == "" {
						continue
					}
					blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
				case models.PartImage:
					blocks = append(blocks, contentBlock{
						Type: "image",
						Source: &imageSource{
							Type:      "base64",
							MediaType: part.Image.MediaType,
							Data:      part.Image.Base64,
						},
					})
				default:
					return messagePayload{}, fmt.Errorf("%w: content part %q", provider.ErrUnsupportedOperation, part.Type)
				}
			}
			if len(blocks) == 0 {
				return messagePayload{}, errors.New("claude messages must not be empty")
			}
			messages = append(messages, message{Role: string(msg.Role), Content: blocks})
		default:
			return messagePayload{}, fmt.Errorf("%w: claude role %q", provider.ErrUnsupportedOperation, msg.Role)
		}
	}

	if messages[0].Role != string(models.RoleUser) {
		return messagePayload{}, errors.New("claude conversation must start with a user message")
	}
	if req.MaxTokens <= 0 {
		return messagePayload{}, errors.New("claude requests require a positive max_tokens value")
	}

	return messagePayload{
		Model:       req.Model,
		Messages:    messages,
		System:      req.Messages.System(),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}, nil
}

type messageResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Usage      usageBlock     `json:"usage"`
	StopReason string         `json:"stop_reason"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (r messageResponse) toCompletion() (*models.Completion, error) {
	if len(r.Content) == 0 {
		return nil, errors.New("claude response missing content blocks")
	}

	text := strings.Builder{}
	for _, block := range r.Content {
		if block.Type != "text" {
			return nil, fmt.Errorf("claude returned unsupported content block type %q", block.Type)
		}
		text.WriteString(block.Text)
	}

	return &models.Completion{
		ID:           r.ID,
		Text:         text.String(),
		FinishReason: r.StopReason,
		Usage: models.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		},
	}, nil
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error apiError `json:"error"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
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
