package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"boq-estimator/internal/config"
	"boq-estimator/internal/models"
	"boq-estimator/internal/provider"
)

// Provider talks to Google Gemini through the generative-ai-go client.
type Provider struct {
	name    string
	client  *genai.Client
	timeout time.Duration
}

// New creates the underlying client once; callers must Close the provider.
func New(ctx context.Context, name string, cfg config.ProviderConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key must not be empty")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Provider{name: name, client: client, timeout: cfg.Timeout}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Close releases the client connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	conv, err := convert(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	session := p.session(req, conv)
	resp, err := session.SendMessage(ctx, conv.last...)
	if err != nil {
		return nil, p.mapError(err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	completion := &models.Completion{Text: text}
	if len(resp.Candidates) > 0 {
		completion.FinishReason = finishReason(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		completion.Usage = models.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return completion, nil
}

func (p *Provider) Stream(ctx context.Context, req models.CompletionRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		conv, err := convert(req)
		if err != nil {
			yield("", err)
			return
		}

		ctx, cancel := p.withTimeout(ctx)
		defer cancel()

		it := p.session(req, conv).SendMessageStream(ctx, conv.last...)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", p.mapError(err))
				return
			}

			text, err := responseText(resp)
			if err != nil {
				yield("", err)
				return
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Provider) session(req models.CompletionRequest, conv conversation) *genai.ChatSession {
	model := p.client.GenerativeModel(req.Model)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if conv.system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(conv.system)}}
	}

	session := model.StartChat()
	session.History = conv.history
	return session
}

func (p *Provider) mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = strings.TrimSpace(gerr.Body)
		}
		return &provider.APIError{Provider: p.name, Status: gerr.Code, Message: msg}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

type conversation struct {
	system  string
	history []*genai.Content
	last    []genai.Part
}

// convert splits a prompt into the system instruction, prior turns and the
// final user turn that is sent.
func convert(req models.CompletionRequest) (conversation, error) {
	if err := provider.ValidateRequest(req); err != nil {
		return conversation{}, err
	}

	conv := conversation{system: req.Messages.System()}
	var turns []*genai.Content
	for _, msg := range req.Messages {
		var role string
		switch msg.Role {
		case models.RoleSystem:
			continue
		case models.RoleUser:
			role = "user"
		case models.RoleAssistant:
			role = "model"
		default:
			return conversation{}, fmt.Errorf("%w: gemini role %q", provider.ErrUnsupportedOperation, msg.Role)
		}

		parts, err := toParts(msg.Parts)
		if err != nil {
			return conversation{}, err
		}
		if len(parts) == 0 {
			continue
		}
		turns = append(turns, &genai.Content{Role: role, Parts: parts})
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != "user" {
		return conversation{}, errors.New("gemini conversation must end with a user message")
	}
	conv.history = turns[:len(turns)-1]
	conv.last = turns[len(turns)-1].Parts
	return conv, nil
}

func toParts(parts []models.Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case models.PartText:
			if strings.TrimSpace(part.Text) == "" {
				continue
			}
			out = append(out, genai.Text(part.Text))
		case models.PartImage:
			data, err := base64.StdEncoding.DecodeString(part.Image.Base64)
			if err != nil {
				return nil, fmt.Errorf("decode image part: %w", err)
			}
			out = append(out, genai.Blob{MIMEType: part.Image.MediaType, Data: data})
		default:
			return nil, fmt.Errorf("%w: content part %q", provider.ErrUnsupportedOperation, part.Type)
		}
	}
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range content.Parts {
		text, ok := part.(genai.Text)
		if !ok {
			return "", fmt.Errorf("gemini returned unsupported part %T", part)
		}
		b.WriteString(string(text))
	}
	return b.String(), nil
}

func finishReason(r genai.FinishReason) string {
	return strings.ToLower(strings.TrimPrefix(r.String(), "FinishReason"))
}
