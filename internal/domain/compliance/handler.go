package compliance

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/errs"
	"github.com/irbhub/irbhub/pkg/pagination"
)

// Handler exposes compliance metrics over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/compliance/metrics")
	g.POST("", h.Record)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

func translate(err error) error {
	var capErr *auth.CapabilityError
	if errors.As(err, &capErr) {
		return echo.NewHTTPError(http.StatusForbidden, capErr.Error())
	}
	return errs.ToHTTP(err)
}

func (h *Handler) Record(c echo.Context) error {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	metric, err := h.svc.Record(c.Request().Context(), actor, in)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusCreated, metric)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid metric id")
	}
	metric, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, metric)
}

func (h *Handler) List(c echo.Context) error {
	p := pagination.FromContext(c)
	f := ListFilter{Limit: p.Limit, Offset: p.Offset}
	if raw := c.QueryParam("study_id"); raw != "" {
		studyID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid study_id")
		}
		f.StudyID = &studyID
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := MetricStatus(raw)
		f.Status = &status
	}
	metrics, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(metrics, total, p.Limit, p.Offset))
}
