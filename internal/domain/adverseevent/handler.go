package adverseevent

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/errs"
	"github.com/irbhub/irbhub/pkg/pagination"
)

// Handler exposes the adverse-event workflow over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/adverse-events")
	g.POST("", h.Report)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.POST("/:id/submit", h.Submit)
	g.POST("/:id/hospitalizations", h.AddHospitalization)
	g.POST("/:id/follow-ups", h.AddFollowUpReport)
}

func (h *Handler) actor(c echo.Context) (auth.Actor, error) {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return actor, nil
}

func translate(err error) error {
	var capErr *auth.CapabilityError
	if errors.As(err, &capErr) {
		return echo.NewHTTPError(http.StatusForbidden, capErr.Error())
	}
	return errs.ToHTTP(err)
}

func (h *Handler) Report(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var in ReportInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	event, err := h.svc.Report(c.Request().Context(), actor, in)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusCreated, event)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid adverse event id")
	}
	event, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, event)
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
		status := Status(raw)
		f.Status = &status
	}
	if c.QueryParam("sae") == "true" {
		f.SAEOnly = true
	}
	events, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(events, total, p.Limit, p.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid adverse event id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	event, err := h.svc.Update(c.Request().Context(), actor, id, in)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) Submit(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid adverse event id")
	}
	result, err := h.svc.Submit(c.Request().Context(), actor, id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) AddHospitalization(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid adverse event id")
	}
	var in HospitalizationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	event, err := h.svc.AddHospitalization(c.Request().Context(), actor, id, in)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, event)
}

func (h *Handler) AddFollowUpReport(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid adverse event id")
	}
	var body struct {
		DocumentID uuid.UUID `json:"document_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	event, err := h.svc.AddFollowUpReport(c.Request().Context(), actor, id, body.DocumentID)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, event)
}
