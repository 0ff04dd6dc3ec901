package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boq-estimator/internal/config"
	"boq-estimator/internal/metrics"
	"boq-estimator/internal/models"
	"boq-estimator/internal/prompt"
	"boq-estimator/internal/provider"
)

const (
	StageTakeOff = "take-off"
	StageCosting = "costing"
)

// Upload is a drawing received from a client.
type Upload struct {
	Data        []byte
	ContentType string
}

// BOQRequest carries take-off text and the caller's optional project metadata.
type BOQRequest struct {
	TakeOff string
	Project prompt.Project
}

// BOQResult echoes the request's project metadata unchanged.
type BOQResult struct {
	Text    string
	Project prompt.Project
}

// Estimate is the output of the combined take-off and costing run.
type Estimate struct {
	TakeOff      string
	BOQWithCosts string
}

// Service turns drawings and take-off text into completion calls.
type Service struct {
	provider    provider.Provider
	model       string
	maxTokens   int
	temperature *float64
	markup      prompt.Markup
	logger      *slog.Logger

	analysis *prompt.Template
	boq      *prompt.Template
	takeOff  *prompt.Template
	costing  *prompt.Template

	pipeline Pipeline[Upload, string, string]
}

// New resolves the configured templates and markup for p.
func New(p provider.Provider, cfg config.Config, logger *slog.Logger) (*Service, error) {
	if p == nil {
		return nil, errors.New("provider must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	markup, err := cfg.MarkupRates()
	if err != nil {
		return nil, err
	}

	s := &Service{
		provider:    p,
		model:       cfg.Provider.Model,
		maxTokens:   cfg.Provider.MaxTokens,
		temperature: cfg.Provider.Temperature,
		markup:      markup,
		logger:      logger,
	}

	catalog := prompt.DefaultCatalog()
	for _, r := range []struct {
		dst     **prompt.Template
		id      string
		purpose prompt.Purpose
	}{
		{&s.analysis, cfg.Prompts.Analysis, prompt.PurposeAnalysis},
		{&s.boq, cfg.Prompts.BOQ, prompt.PurposeBOQ},
		{&s.takeOff, cfg.Prompts.TakeOff, prompt.PurposeTakeOff},
		{&s.costing, cfg.Prompts.Costing, prompt.PurposeCosting},
	} {
		tpl, err := catalog.Resolve(r.id, r.purpose)
		if err != nil {
			return nil, err
		}
		*r.dst = tpl
	}

	s.pipeline = Pipeline[Upload, string, string]{
		First:  Stage[Upload, string]{Name: StageTakeOff, Run: s.runTakeOff},
		Second: Stage[string, string]{Name: StageCosting, Run: s.runCosting},
		Hook:   s.observeStage,
	}
	return s, nil
}

// AnalyzeDrawing streams a take-off for the drawing and returns the fragments
// joined in arrival order. Zero fragments yield an empty string.
func (s *Service) AnalyzeDrawing(ctx context.Context, upload Upload) (string, error) {
	img := prompt.EncodeImage(upload.Data, upload.ContentType)
	msgs, err := s.analysis.Build(prompt.Data{}, &img)
	if err != nil {
		return "", err
	}

	text, err := provider.Collect(s.provider.Stream(ctx, s.request(msgs)))
	if err != nil {
		s.logger.Error("drawing analysis failed", "provider", s.provider.Name(), "template", s.analysis.ID(), "error", err)
		return "", err
	}
	return text, nil
}

// GenerateBOQ prices the take-off text in a single call.
func (s *Service) GenerateBOQ(ctx context.Context, req BOQRequest) (BOQResult, error) {
	msgs, err := s.boq.Build(prompt.Data{Project: req.Project, TakeOff: req.TakeOff}, nil)
	if err != nil {
		return BOQResult{}, err
	}

	text, err := s.complete(ctx, msgs)
	if err != nil {
		s.logger.Error("boq generation failed", "provider", s.provider.Name(), "template", s.boq.ID(), "error", err)
		return BOQResult{}, err
	}
	return BOQResult{Text: text, Project: req.Project}, nil
}

// EstimateCosts runs the take-off stage on the drawing, then feeds its text
// verbatim into the costing stage.
func (s *Service) EstimateCosts(ctx context.Context, upload Upload) (Estimate, error) {
	takeOff, boq, err := s.pipeline.Run(ctx, upload)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{TakeOff: takeOff, BOQWithCosts: boq}, nil
}

func (s *Service) runTakeOff(ctx context.Context, upload Upload) (string, error) {
	img := prompt.EncodeImage(upload.Data, upload.ContentType)
	msgs, err := s.takeOff.Build(prompt.Data{}, &img)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, msgs)
}

func (s *Service) runCosting(ctx context.Context, takeOff string) (string, error) {
	msgs, err := s.costing.Build(prompt.Data{TakeOff: takeOff, Markup: s.markup}, nil)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, msgs)
}

func (s *Service) observeStage(ctx context.Context, stage string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		s.logger.ErrorContext(ctx, "estimate stage failed", "provider", s.provider.Name(), "stage", stage, "error", err)
	} else {
		s.logger.DebugContext(ctx, "estimate stage finished", "stage", stage, "elapsed_ms", elapsed.Milliseconds())
	}
	metrics.StageDuration.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func (s *Service) complete(ctx context.Context, msgs models.Prompt) (string, error) {
	resp, err := s.provider.Complete(ctx, s.request(msgs))
	if err != nil {
		return "", fmt.Errorf("provider %s completion request: %w", s.provider.Name(), err)
	}
	return resp.Text, nil
}

func (s *Service) request(msgs models.Prompt) models.CompletionRequest {
	return models.CompletionRequest{
		Model:       s.model,
		Messages:    msgs,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
}
