package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boq-estimator/internal/config"
	"boq-estimator/internal/estimate"
	"boq-estimator/internal/models"
	"boq-estimator/internal/provider"
)

type stubProvider struct {
	fragments []string
	replies   []string
	err       error
	requests  []models.CompletionRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, req models.CompletionRequest) (*models.Completion, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Completion{Text: s.replies[len(s.requests)-1]}, nil
}

func (s *stubProvider) Stream(_ context.Context, req models.CompletionRequest) iter.Seq2[string, error] {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return provider.Fail(s.err)
	}
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func newTestServer(t *testing.T, profile string, stub *stubProvider) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default(profile)
	cfg.Provider.APIKey = "sk-test"

	svc, err := estimate.New(stub, cfg, logger)
	require.NoError(t, err)

	srv, err := New(cfg, svc, logger)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.app.ServeHTTP(rec, req)
	return rec
}

func smallJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10)), nil))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, "drawing.jpg")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAnalyzeDrawingStreamsResult(t *testing.T) {
	for _, profile := range []string{config.ProfileAnalyzer, config.ProfileBOQ} {
		t.Run(profile, func(t *testing.T) {
			stub := &stubProvider{fragments: []string{"| Item", " | Qty |"}}
			srv := newTestServer(t, profile, stub)

			rec := serve(srv, uploadRequest(t, "/analyze-drawing/", "file", smallJPEG(t)))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"result":"| Item | Qty |"}`, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

			require.Len(t, stub.requests, 1)
			msgs := stub.requests[0].Messages
			last := msgs[len(msgs)-1]
			require.True(t, last.HasImage())
			assert.Equal(t, "image/jpeg", last.Parts[len(last.Parts)-1].Image.MediaType)
		})
	}
}

func TestAnalyzeDrawingZeroFragments(t *testing.T) {
	srv := newTestServer(t, config.ProfileAnalyzer, &stubProvider{})

	rec := serve(srv, uploadRequest(t, "/analyze-drawing", "file", smallJPEG(t)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":""}`, rec.Body.String())
}

func TestAnalyzeDrawingUpstreamFailureIsGeneric(t *testing.T) {
	stub := &stubProvider{err: &provider.APIError{Provider: "stub", Status: 401, Message: "invalid api key"}}
	srv := newTestServer(t, config.ProfileAnalyzer, stub)

	rec := serve(srv, uploadRequest(t, "/analyze-drawing/", "file", smallJPEG(t)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal Server Error"}`, rec.Body.String())
}

func TestAnalyzeDrawingMissingFile(t *testing.T) {
	srv := newTestServer(t, config.ProfileBOQ, &stubProvider{})

	rec := serve(srv, uploadRequest(t, "/analyze-drawing/", "drawing", smallJPEG(t)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"detail":"file: field required"}`, rec.Body.String())

	rec = serve(srv, jsonRequest("/analyze-drawing/", `{}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGenerateBOQWithoutProjectInfo(t *testing.T) {
	stub := &stubProvider{replies: []string{"BOQ TABLE"}}
	srv := newTestServer(t, config.ProfileBOQ, stub)

	rec := serve(srv, jsonRequest("/generate-boq/", `{"takeoff_data": "| 1 | Wall | m2 | 10 |"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"BOQ TABLE","project_info":{"project_name":null,"location":null,"client":null}}`, rec.Body.String())

	require.Len(t, stub.requests, 1)
	user := stub.requests[0].Messages[1].Text()
	assert.Contains(t, user, "Project: Construction Project")
	assert.Contains(t, user, "| 1 | Wall | m2 | 10 |")
}

func TestGenerateBOQEchoesProjectInfo(t *testing.T) {
	srv := newTestServer(t, config.ProfileBOQ, &stubProvider{replies: []string{"BOQ TABLE"}})

	rec := serve(srv, jsonRequest("/generate-boq", `{"takeoff_data":"x","project_name":"Villa","location":"","client":"ACME"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"BOQ TABLE","project_info":{"project_name":"Villa","location":"","client":"ACME"}}`, rec.Body.String())
}

func TestGenerateBOQUpstreamFailure(t *testing.T) {
	stub := &stubProvider{err: &provider.APIError{Provider: "stub", Status: 429, Type: "insufficient_quota", Message: "quota exceeded"}}
	srv := newTestServer(t, config.ProfileBOQ, stub)

	rec := serve(srv, jsonRequest("/generate-boq/", `{"takeoff_data":"x"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.Detail, "Error generating BOQ: "))
	assert.Contains(t, body.Detail, "quota exceeded")
}

func TestGenerateBOQValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{name: "missing takeoff", body: `{"project_name":"Villa"}`, detail: "takeoff_data: field required"},
		{name: "wrong type", body: `{"takeoff_data": 12}`, detail: "takeoff_data: Invalid type. Expected: string, given: integer"},
		{name: "empty body", body: ``, detail: "request body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProvider{}
			srv := newTestServer(t, config.ProfileBOQ, stub)

			rec := serve(srv, jsonRequest("/generate-boq/", tt.body))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.JSONEq(t, `{"detail":"`+tt.detail+`"}`, rec.Body.String())
			assert.Empty(t, stub.requests)
		})
	}

	srv := newTestServer(t, config.ProfileBOQ, &stubProvider{})
	rec := serve(srv, jsonRequest("/generate-boq/", `{"takeoff_data":`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON payload")
}

func TestEstimateCosts(t *testing.T) {
	stub := &stubProvider{replies: []string{"TAKEOFF TABLE", "COSTED BOQ"}}
	srv := newTestServer(t, config.ProfileBOQ, stub)

	rec := serve(srv, uploadRequest(t, "/estimate-costs/", "file", smallJPEG(t)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"takeoff_data":"TAKEOFF TABLE","boq_with_costs":"COSTED BOQ"}`, rec.Body.String())
	require.Len(t, stub.requests, 2)
	assert.Contains(t, stub.requests[1].Messages[1].Text(), "TAKEOFF TABLE")
}

func TestEstimateCostsFailure(t *testing.T) {
	stub := &stubProvider{err: errors.New("upstream exploded")}
	srv := newTestServer(t, config.ProfileBOQ, stub)

	rec := serve(srv, uploadRequest(t, "/estimate-costs/", "file", smallJPEG(t)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.Detail, "Error processing request: "))
	assert.Contains(t, body.Detail, "upstream exploded")
	assert.Len(t, stub.requests, 1)
}

func TestAnalyzerProfileRoutes(t *testing.T) {
	srv := newTestServer(t, config.ProfileAnalyzer, &stubProvider{})

	rec := serve(srv, jsonRequest("/generate-boq/", `{"takeoff_data":"x"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Not Found"}`, rec.Body.String())

	rec = serve(srv, uploadRequest(t, "/estimate-costs/", "file", smallJPEG(t)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, config.ProfileBOQ, &stubProvider{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewRequiresEstimator(t *testing.T) {
	_, err := New(config.Default(config.ProfileBOQ), nil, nil)
	assert.ErrorContains(t, err, "estimator must not be nil")
}
