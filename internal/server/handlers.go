package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/xeipuuv/gojsonschema"

	"boq-estimator/internal/estimate"
	"boq-estimator/internal/prompt"
)

const uploadField = "file"

const boqRequestSchema = `{
  "type": "object",
  "required": ["takeoff_data"],
  "properties": {
    "takeoff_data": {"type": "string"},
    "project_name": {"type": ["string", "null"]},
    "location":     {"type": ["string", "null"]},
    "client":       {"type": ["string", "null"]}
  }
}`

type analyzeResponse struct {
	Result string `json:"result"`
}

type boqRequest struct {
	TakeoffData string  `json:"takeoff_data"`
	ProjectName *string `json:"project_name"`
	Location    *string `json:"location"`
	Client      *string `json:"client"`
}

type projectInfo struct {
	ProjectName *string `json:"project_name"`
	Location    *string `json:"location"`
	Client      *string `json:"client"`
}

type boqResponse struct {
	Result      string      `json:"result"`
	ProjectInfo projectInfo `json:"project_info"`
}

type estimateResponse struct {
	TakeoffData  string `json:"takeoff_data"`
	BOQWithCosts string `json:"boq_with_costs"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyzeDrawing(c echo.Context) error {
	upload, err := readUpload(c)
	if err != nil {
		return err
	}

	text, err := s.estimator.AnalyzeDrawing(c.Request().Context(), upload)
	if err != nil {
		s.logger.Error("analyze drawing failed", "request_id", requestID(c), "err", err)
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: http.StatusText(http.StatusInternalServerError),
		}
	}

	return c.JSON(http.StatusOK, analyzeResponse{Result: text})
}

func (s *Server) handleGenerateBOQ(c echo.Context) error {
	var req boqRequest
	if err := s.decodeBOQRequest(c, &req); err != nil {
		return err
	}

	project := prompt.Project{Name: req.ProjectName, Location: req.Location, Client: req.Client}
	res, err := s.estimator.GenerateBOQ(c.Request().Context(), estimate.BOQRequest{
		TakeOff: req.TakeoffData,
		Project: project,
	})
	if err != nil {
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "Error generating BOQ: " + err.Error(),
		}
	}

	return c.JSON(http.StatusOK, boqResponse{
		Result: res.Text,
		ProjectInfo: projectInfo{
			ProjectName: res.Project.Name,
			Location:    res.Project.Location,
			Client:      res.Project.Client,
		},
	})
}

func (s *Server) handleEstimateCosts(c echo.Context) error {
	upload, err := readUpload(c)
	if err != nil {
		return err
	}

	est, err := s.estimator.EstimateCosts(c.Request().Context(), upload)
	if err != nil {
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "Error processing request: " + err.Error(),
		}
	}

	return c.JSON(http.StatusOK, estimateResponse{
		TakeoffData:  est.TakeOff,
		BOQWithCosts: est.BOQWithCosts,
	})
}

// readUpload reads the multipart "file" part. Its content is not inspected.
func readUpload(c echo.Context) (estimate.Upload, error) {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return estimate.Upload{}, requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: http.StatusText(http.StatusRequestEntityTooLarge),
			}
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return estimate.Upload{}, he
		}
		return estimate.Upload{}, requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: uploadField + ": field required",
		}
	}

	f, err := fh.Open()
	if err != nil {
		return estimate.Upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return estimate.Upload{}, fmt.Errorf("read upload: %w", err)
	}

	return estimate.Upload{Data: data, ContentType: fh.Header.Get(echo.HeaderContentType)}, nil
}

func (s *Server) decodeBOQRequest(c echo.Context, target *boqRequest) error {
	req := c.Request()
	defer req.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return requestError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: http.StatusText(http.StatusRequestEntityTooLarge),
			}
		}
		return fmt.Errorf("read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: "request body is required",
		}
	}

	result, err := s.boqSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}
	if !result.Valid() {
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: schemaErrors(result.Errors()),
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return requestError{
			Status:  http.StatusUnprocessableEntity,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}
	return nil
}

func schemaErrors(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		field := e.Field()
		if e.Type() == "required" {
			if prop, ok := e.Details()["property"].(string); ok {
				field = prop
			}
			msgs = append(msgs, field+": field required")
			continue
		}
		msgs = append(msgs, field+": "+e.Description())
	}
	return strings.Join(msgs, "; ")
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
