// Package rest is the JSON HTTP surface of the account service, served with
// echo under the /api prefix.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type RegistrationService interface {
	Apply(ctx context.Context, req services.ApplyRequest) error
	Confirm(ctx context.Context, email, code string) (models.TokenPair, error)
	RequestEmailChange(ctx context.Context, accountID uuid.UUID, newEmail string) error
	ReVerify(ctx context.Context, accountID uuid.UUID, email, code string) error
}

type SessionService interface {
	Authenticate(ctx context.Context, email, password string) (models.TokenPair, error)
	Restore(ctx context.Context, refreshToken string) (models.TokenPair, error)
	ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error
	Authorize(accessToken string) (models.TokenPayload, error)
}

type ProfileService interface {
	Me(ctx context.Context, id uuid.UUID) (models.Profile, error)
	Patch(ctx context.Context, id uuid.UUID, patch models.AccountPatch) error
	List(ctx context.Context, count, offset int, desc bool) (models.AccountPage, error)
}

type Handler struct {
	registration RegistrationService
	sessions     SessionService
	profiles     ProfileService
	logger       logging.Logger
}

func NewHandler(r RegistrationService, s SessionService, p ProfileService, l logging.Logger) *Handler {
	return &Handler{
		registration: r,
		sessions:     s,
		profiles:     p,
		logger:       l.With("module", "rest"),
	}
}

// Routes registers every endpoint on g.
func (h *Handler) Routes(g *echo.Group) {
	g.POST("/apply-registration", h.applyRegistration)
	g.POST("/signup", h.signup)
	g.POST("/signin", h.signin)
	g.PATCH("/restore-token", h.restoreToken)

	g.PATCH("/change-password", h.changePassword, h.requireBearer)
	g.GET("/me", h.me, h.requireBearer)
	g.PATCH("/me", h.patchMe, h.requireBearer)
	g.PATCH("/me/verify", h.verify, h.requireBearer)
	g.PATCH("/me/email", h.requestEmailChange, h.requireBearer)
	g.GET("/accounts", h.listAccounts, h.requireBearer, h.requireRole(models.RoleAdmin))
}

type validatable interface {
	Validate() error
}

// bind decodes the request into dst and validates it.
func bind(c echo.Context, dst validatable) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return dst.Validate()
}

func (h *Handler) applyRegistration(c echo.Context) error {
	var req applyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	err := h.registration.Apply(c.Request().Context(), services.ApplyRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) signup(c echo.Context) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	pair, err := h.registration.Confirm(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) signin(c echo.Context) error {
	var req signinRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	pair, err := h.sessions.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) restoreToken(c echo.Context) error {
	var req restoreRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	pair, err := h.sessions.Restore(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) changePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.sessions.ChangePassword(c.Request().Context(), principal(c).AccountID, req.Password, req.NewPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) me(c echo.Context) error {
	p, err := h.profiles.Me(c.Request().Context(), principal(c).AccountID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// patchMe applies a role change only for callers that already hold the
// Admin role.
func (h *Handler) patchMe(c echo.Context) error {
	var req patchMeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	p := principal(c)
	if req.Role != nil && p.Role != models.RoleAdmin {
		return fmt.Errorf("changing role requires %s: %w", models.RoleAdmin, common.ErrorForbidden)
	}

	if err := h.profiles.Patch(c.Request().Context(), p.AccountID, req.patch()); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// verify answers 404 for a wrong or expired code, for an unknown account and
// for an address another account already holds.
func (h *Handler) verify(c echo.Context) error {
	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	err := h.registration.ReVerify(c.Request().Context(), principal(c).AccountID, req.Email, req.Code)
	if errors.Is(err, common.ErrCodeMismatch) || errors.Is(err, common.ErrorConflict) {
		return fmt.Errorf("%v: %w", err, common.ErrorNotFound)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) requestEmailChange(c echo.Context) error {
	var req emailChangeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.registration.RequestEmailChange(c.Request().Context(), principal(c).AccountID, req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) listAccounts(c echo.Context) error {
	var q listQuery
	if err := bind(c, &q); err != nil {
		return err
	}
	if q.Count == 0 {
		q.Count = defaultPageSize
	}

	page, err := h.profiles.List(c.Request().Context(), q.Count, q.Offset, q.Order == "desc")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}
