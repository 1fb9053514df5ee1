package records

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/hipaa"
	"github.com/hms/hms/pkg/pagination"
)

// Handler exposes encrypted clinical record storage. Authorization failures
// of any kind are a bare 403; what was denied and why lives in the audit
// trail, not in the response.
type Handler struct {
	svc    *Service
	issuer *auth.TokenIssuer
}

func NewHandler(svc *Service, issuer *auth.TokenIssuer) *Handler {
	return &Handler{svc: svc, issuer: issuer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/records", auth.Middleware(h.issuer))
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Open)
}

type createRequest struct {
	PatientEmail string `json:"patient_email"`
	FieldClass   string `json:"field_class"`
	Title        string `json:"title"`
	Payload      string `json:"payload"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientEmail == "" || req.Payload == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_email and payload are required")
	}

	actor, _ := auth.EmailFromContext(c)
	role, _ := auth.RoleFromContext(c)

	rec, err := h.svc.Create(c.Request().Context(), actor, role,
		req.PatientEmail, auth.FieldClass(req.FieldClass), req.Title, []byte(req.Payload))
	if errors.Is(err, auth.ErrPermissionDenied) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "record creation failed")
	}
	return c.JSON(http.StatusCreated, rec.Meta())
}

func (h *Handler) Open(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}

	actor, _ := auth.EmailFromContext(c)
	role, _ := auth.RoleFromContext(c)

	rec, plaintext, err := h.svc.Open(c.Request().Context(), actor, role, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, auth.ErrPermissionDenied), errors.Is(err, hipaa.ErrDecryptDenied):
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case errors.Is(err, hipaa.ErrIntegrityFailure):
		return echo.NewHTTPError(http.StatusInternalServerError, "record unavailable")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "record unavailable")
	}

	resp := struct {
		Meta
		Payload string `json:"payload"`
	}{
		Meta:    rec.Meta(),
		Payload: base64.StdEncoding.EncodeToString(plaintext),
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) List(c echo.Context) error {
	patient := c.QueryParam("patient")
	if patient == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient is required")
	}

	actor, _ := auth.EmailFromContext(c)
	role, _ := auth.RoleFromContext(c)
	params := pagination.FromContext(c)

	metas, total, err := h.svc.List(c.Request().Context(), actor, role, patient, params.Limit, params.Offset)
	if errors.Is(err, auth.ErrPermissionDenied) {
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "listing failed")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(metas, total, params.Limit, params.Offset))
}
