package documents

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/irbhub/irbhub/internal/platform/errs"
)

// Handler exposes document registration over HTTP. Submissions reference
// documents by ID, so documents are registered before the submission that
// carries them.
type Handler struct {
	registry Registry
}

func NewHandler(registry Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/documents", h.register)
	g.GET("/documents/:id", h.get)
}

type registerRequest struct {
	StudyID   uuid.UUID  `json:"study_id"`
	Name      string     `json:"name"`
	Type      Type       `json:"type"`
	Version   string     `json:"version"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var missing []string
	if req.StudyID == uuid.Nil {
		missing = append(missing, "study_id")
	}
	if req.Name == "" {
		missing = append(missing, "name")
	}
	if req.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return errs.ToHTTP(errs.Validation(missing...))
	}

	doc := &Document{
		StudyID:   req.StudyID,
		Name:      req.Name,
		Type:      req.Type,
		Version:   req.Version,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.registry.Register(c.Request().Context(), doc); err != nil {
		return errs.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	doc, err := h.registry.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, doc)
}
