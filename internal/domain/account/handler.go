package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

// Handler exposes the authentication and account administration endpoints.
// Every authentication failure is reported with the same generic message;
// the audit trail holds the specifics.
type Handler struct {
	svc    *Service
	issuer *auth.TokenIssuer
}

func NewHandler(svc *Service, issuer *auth.TokenIssuer) *Handler {
	return &Handler{svc: svc, issuer: issuer}
}

// RegisterRoutes mounts the public auth endpoints and the admin group.
// extra middleware (typically a strict rate limit) is applied to the
// credential-handling endpoints only.
func (h *Handler) RegisterRoutes(api *echo.Group, extra ...echo.MiddlewareFunc) {
	authGroup := api.Group("/auth", extra...)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/mfa/verify", h.VerifyMFA)
	authGroup.POST("/token/refresh", h.Refresh)
	authGroup.POST("/logout", h.Logout)

	adminGroup := api.Group("/admin", auth.Middleware(h.issuer))
	adminGroup.GET("/mfa/secret", h.ProvisionMFA, auth.RequireCapability(auth.CapProvisionMFA))
	adminGroup.DELETE("/mfa/secret", h.DisableMFA, auth.RequireCapability(auth.CapProvisionMFA))
	adminGroup.POST("/users", h.CreateUser, auth.RequireCapability(auth.CapManageUsers))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return authFailure(err)
	}

	if result.MFARequired {
		return c.JSON(http.StatusOK, map[string]bool{"mfa_required": true})
	}
	return c.JSON(http.StatusOK, result.Tokens)
}

type mfaVerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) VerifyMFA(c echo.Context) error {
	var req mfaVerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tokens, err := h.svc.VerifyMFA(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return authFailure(err)
	}
	return c.JSON(http.StatusOK, tokens)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tokens, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return authFailure(err)
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *Handler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.svc.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ProvisionMFA(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	actor, _ := auth.EmailFromContext(c)

	secret, err := h.svc.ProvisionMFA(c.Request().Context(), actor, email)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "mfa provisioning failed")
	}
	return c.JSON(http.StatusOK, secret)
}

func (h *Handler) DisableMFA(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	actor, _ := auth.EmailFromContext(c)

	err := h.svc.DisableMFA(c.Request().Context(), actor, email)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "mfa update failed")
	}
	return c.NoContent(http.StatusNoContent)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor, _ := auth.EmailFromContext(c)

	u, err := h.svc.CreateUser(c.Request().Context(), actor, req.Email, req.Password, auth.Role(req.Role))
	if errors.Is(err, ErrDuplicate) {
		return echo.NewHTTPError(http.StatusConflict, "email already registered")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"email": u.Email,
		"role":  string(u.Role),
	})
}

// authFailure maps every authentication error onto a uniform 401. Clients
// never learn whether the email, password, code, or token was the problem.
func authFailure(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, auth.ErrMFAInvalidFormat),
		errors.Is(err, auth.ErrMFAIncorrect),
		errors.Is(err, auth.ErrMFANotPending),
		errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrAccountLocked),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenUnknown),
		errors.Is(err, auth.ErrTokenReuse):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
