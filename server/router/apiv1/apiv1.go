// Package apiv1 exposes the pipeline's query and command surface as a JSON
// HTTP API.
package apiv1

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/conductor-hq/conductor/server/internal/errors"
	"github.com/conductor-hq/conductor/server/service/pipeline"
	"github.com/conductor-hq/conductor/store"
)

// APIV1Service wires the pipeline command surface to HTTP routes.
type APIV1Service struct {
	pipeline *pipeline.Service
}

// NewAPIV1Service creates the v1 API service.
func NewAPIV1Service(p *pipeline.Service) *APIV1Service {
	return &APIV1Service{pipeline: p}
}

// RegisterRoutes registers all v1 routes on the echo group.
func (s *APIV1Service) RegisterRoutes(g *echo.Group) {
	g.GET("/proposals", s.listProposals)
	g.POST("/proposals/:id/approve", s.approveProposal)
	g.POST("/proposals/:id/decline", s.declineProposal)

	g.GET("/playbooks", s.listPlaybooks)
	g.POST("/playbooks/:id/autopilot", s.enableAutopilot)
	g.POST("/playbooks/:id/rollback", s.rollbackPlaybook)

	g.POST("/observations", s.ingestObservation)
	g.POST("/observation/start", s.startObservation)
	g.POST("/observation/stop", s.stopObservation)
	g.POST("/private-mode", s.setPrivateMode)

	g.GET("/status", s.getStatus)
}

func (s *APIV1Service) listProposals(c echo.Context) error {
	proposals, err := s.pipeline.PendingProposals(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"proposals": convertProposalListFromStore(proposals)})
}

type approveRequest struct {
	EditedContent string `json:"edited_content"`
}

func (s *APIV1Service) approveProposal(c echo.Context) error {
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	result, err := s.pipeline.ApproveProposal(c.Request().Context(), c.Param("id"), req.EditedContent)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"proposal":      convertProposalFromStore(result.Proposal),
		"decision":      convertDecisionFromStore(result.Decision),
		"execution":     convertExecutionResult(result.Execution),
		"pending_count": result.PendingCount,
	})
}

func (s *APIV1Service) declineProposal(c echo.Context) error {
	count, err := s.pipeline.DeclineProposal(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"pending_count": count})
}

func (s *APIV1Service) listPlaybooks(c echo.Context) error {
	playbooks, err := s.pipeline.Playbooks(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"playbooks": convertPlaybookListFromStore(playbooks)})
}

func (s *APIV1Service) enableAutopilot(c echo.Context) error {
	playbook, err := s.pipeline.EnableAutopilot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"playbook": convertPlaybookFromStore(playbook)})
}

func (s *APIV1Service) rollbackPlaybook(c echo.Context) error {
	playbook, err := s.pipeline.RollbackPlaybook(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"playbook": convertPlaybookFromStore(playbook)})
}

type observationRequest struct {
	BundleID    string  `json:"bundle_id"`
	AppName     string  `json:"app_name"`
	WindowTitle string  `json:"window_title"`
	WindowID    string  `json:"window_id"`
	URL         string  `json:"url"`
	Kind        string  `json:"kind"`
	Payload     string  `json:"payload"`
	Timestamp   int64   `json:"timestamp"`
	Confidence  float64 `json:"confidence"`
}

func (s *APIV1Service) ingestObservation(c echo.Context) error {
	var req observationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Kind == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "kind is required")
	}

	s.pipeline.Observe(&store.Observation{
		BundleID:    req.BundleID,
		AppName:     req.AppName,
		WindowTitle: req.WindowTitle,
		WindowID:    req.WindowID,
		URL:         req.URL,
		Kind:        store.ObservationKind(req.Kind),
		Payload:     req.Payload,
		Timestamp:   req.Timestamp,
		Confidence:  req.Confidence,
	})
	return c.NoContent(http.StatusAccepted)
}

func (s *APIV1Service) startObservation(c echo.Context) error {
	s.pipeline.StartObservation()
	count, err := s.pipeline.PendingCount(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"observing": true, "pending_count": count})
}

func (s *APIV1Service) stopObservation(c echo.Context) error {
	s.pipeline.StopObservation(c.Request().Context())
	count, err := s.pipeline.PendingCount(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"observing": false, "pending_count": count})
}

type privateModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *APIV1Service) setPrivateMode(c echo.Context) error {
	var req privateModeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	s.pipeline.SetPrivateMode(req.Enabled)
	count, err := s.pipeline.PendingCount(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"private_mode": req.Enabled, "pending_count": count})
}

func (s *APIV1Service) getStatus(c echo.Context) error {
	count, err := s.pipeline.PendingCount(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"observing":     s.pipeline.Observing(),
		"private_mode":  s.pipeline.PrivateMode(),
		"pending_count": count,
	})
}

// httpError maps coded pipeline errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case stderrors.Is(err, store.ErrIllegalStatusTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.IsCode(err, errors.ErrCodeNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.IsCode(err, errors.ErrCodeInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.IsCode(err, errors.ErrCodeConfigError):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.IsCode(err, errors.ErrCodeTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
