package submission

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/irbhub/irbhub/internal/platform/auth"
	"github.com/irbhub/irbhub/internal/platform/errs"
	"github.com/irbhub/irbhub/pkg/pagination"
)

// Handler exposes the submission workflow over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/submissions")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.POST("/:id/submit", h.Submit)
	g.POST("/:id/assign-reviewers", h.AssignReviewers)
	g.POST("/:id/decision", h.MakeDecision)
	g.POST("/:id/withdraw", h.Withdraw)
	g.GET("/:id/reviews", h.ListReviews)

	r := api.Group("/reviews")
	r.GET("", h.ListReviewsByReviewer)
	r.POST("/:id/start", h.StartReview)
	r.POST("/:id/complete", h.CompleteReview)
	r.POST("/:id/cancel", h.CancelReview)
}

func (h *Handler) actor(c echo.Context) (auth.Actor, error) {
	actor, err := auth.ActorFromContext(c.Request().Context())
	if err != nil {
		return auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return actor, nil
}

// translate maps service errors onto HTTP errors.
func translate(err error) error {
	var capErr *auth.CapabilityError
	if errors.As(err, &capErr) {
		return echo.NewHTTPError(http.StatusForbidden, capErr.Error())
	}
	return errs.ToHTTP(err)
}

func (h *Handler) Create(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusCreated, sub)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	sub, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, sub)
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
	subs, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(subs, total, p.Limit, p.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.Update(c.Request().Context(), actor, id, in)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Submit(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	sub, err := h.svc.SubmitForReview(c.Request().Context(), actor, id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) AssignReviewers(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	var body struct {
		Reviewers []Assignment `json:"reviewers"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.AssignReviewers(c.Request().Context(), actor, id, body.Reviewers)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) MakeDecision(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	var in DecisionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.MakeDecision(c.Request().Context(), actor, id, in)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Withdraw(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sub, err := h.svc.Withdraw(c.Request().Context(), actor, id, body.Reason)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) ListReviews(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid submission id")
	}
	reviews, err := h.svc.ListReviews(c.Request().Context(), id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, reviews)
}

func (h *Handler) StartReview(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid review id")
	}
	review, err := h.svc.StartReview(c.Request().Context(), actor, id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, review)
}

func (h *Handler) CompleteReview(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid review id")
	}
	var body struct {
		Recommendation string `json:"recommendation"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	review, err := h.svc.CompleteReview(c.Request().Context(), actor, id, body.Recommendation)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, review)
}

func (h *Handler) CancelReview(c echo.Context) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid review id")
	}
	review, err := h.svc.CancelReview(c.Request().Context(), actor, id)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, review)
}

func (h *Handler) ListReviewsByReviewer(c echo.Context) error {
	reviewerID := c.QueryParam("reviewer_id")
	if reviewerID == "" {
		return errs.ToHTTP(errs.Validation("reviewer_id"))
	}
	reviews, err := h.svc.ListReviewsByReviewer(c.Request().Context(), reviewerID)
	if err != nil {
		return translate(err)
	}
	return c.JSON(http.StatusOK, reviews)
}
