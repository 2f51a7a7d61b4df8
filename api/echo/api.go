// Package echo mounts the security core on the site's HTTP surface: the
// authentication endpoints and the admin security views.
package echo

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/config"
	"github.com/veloursalon/websec/csrf"
	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/internal/auth"
	"github.com/veloursalon/websec/log"
	"github.com/veloursalon/websec/loginguard"
	"github.com/veloursalon/websec/middleware"
	"github.com/veloursalon/websec/seclog"
	"github.com/veloursalon/websec/session"
)

// User is the slice of a site account the security endpoints need.
type User struct {
	ID           string
	Email        string
	Role         domain.Role
	PasswordHash string
}

// ErrUserNotFound is returned by a UserDirectory for unknown emails.
var ErrUserNotFound = errors.New("user not found")

// UserDirectory resolves login emails to accounts. The site's data layer
// implements this; the core does not own user storage.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// SecurityAPI holds the handler dependencies.
type SecurityAPI struct {
	cfg      *config.SecurityConfig
	gate     *middleware.Gate
	sessions *session.Store
	csrf     *csrf.Store
	guard    *loginguard.Guard
	events   *seclog.Log
	hasher   auth.PasswordHasher
	users    UserDirectory
	logger   log.Logger
}

// NewSecurityAPI initializes the security API.
func NewSecurityAPI(
	cfg *config.SecurityConfig,
	gate *middleware.Gate,
	sessions *session.Store,
	csrfStore *csrf.Store,
	guard *loginguard.Guard,
	events *seclog.Log,
	hasher auth.PasswordHasher,
	users UserDirectory,
	logger log.Logger,
) *SecurityAPI {
	return &SecurityAPI{
		cfg:      cfg,
		gate:     gate,
		sessions: sessions,
		csrf:     csrfStore,
		guard:    guard,
		events:   events,
		hasher:   hasher,
		users:    users,
		logger:   logger,
	}
}

// RegisterRoutes mounts the endpoints with their gate middleware in the
// canonical order.
func (sa *SecurityAPI) RegisterRoutes(e *echo.Echo) {
	e.Use(middleware.SecurityHeaders(), sa.gate.APIVersion())

	e.POST("/auth/login", sa.LoginHandler, sa.gate.LoginRateGate())
	e.POST("/auth/logout", sa.LogoutHandler, sa.gate.SessionAuth())
	e.GET("/auth/csrf-token", sa.CSRFTokenHandler, sa.gate.SessionAuth())

	admin := e.Group("/admin/security",
		sa.gate.IPAllowlist(sa.cfg.AdminAllowedIPs),
		sa.gate.SessionAuth(domain.RoleAdmin),
	)
	admin.GET("/dashboard", sa.DashboardHandler)
	admin.GET("/report", sa.ReportHandler)
	admin.POST("/events/:id/resolve", sa.ResolveEventHandler, sa.gate.CSRF())
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginHandler authenticates a user. The lockout gate has already let the
// request through; this handler records the attempt outcome.
func (sa *SecurityAPI) LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password required")
	}

	ctx := c.Request().Context()
	rc := domain.RequestContextFromHTTP(c.Request())

	user, err := sa.users.FindByEmail(ctx, req.Email)
	if err != nil || sa.hasher.Verify(user.PasswordHash, req.Password) != nil {
		record, gerr := sa.guard.RecordFailure(ctx, rc.SourceIP)
		if gerr != nil && sa.logger != nil {
			sa.logger.Error(ctx, "recording login failure", gerr, nil)
		}
		sa.events.Record(ctx, domain.EventLoginFailure, rc, map[string]string{
			"email":                req.Email,
			"consecutive_failures": strconv.Itoa(record.Attempts),
		}, "")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	if err := sa.guard.RecordSuccess(ctx, rc.SourceIP); err != nil && sa.logger != nil {
		sa.logger.Warn(ctx, "clearing attempt record failed", map[string]interface{}{"error": err.Error()})
	}

	sess, err := sa.sessions.Create(ctx, user.ID, user.Email, user.Role, rc)
	if err != nil {
		if sa.logger != nil {
			sa.logger.Error(ctx, "session creation failed", err, nil)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "could not establish session")
	}
	sa.gate.SetSessionCookie(c, sess)

	token, err := sa.csrf.Issue(ctx, sess.ID)
	if err != nil {
		if sa.logger != nil {
			sa.logger.Error(ctx, "csrf issuance failed", err, nil)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}

	sa.events.Record(ctx, domain.EventLoginSuccess, rc, nil, user.ID)
	sa.events.Record(ctx, domain.EventSessionCreated, rc, nil, user.ID)

	return c.JSON(http.StatusOK, map[string]string{
		"csrf_token": token,
		"role":       string(user.Role),
	})
}

// LogoutHandler destroys the session and its CSRF token.
func (sa *SecurityAPI) LogoutHandler(c echo.Context) error {
	ctx := c.Request().Context()
	rc := domain.RequestContextFromHTTP(c.Request())

	sess, ok := middleware.SessionFromContext(c)
	if ok {
		_ = sa.sessions.Destroy(ctx, sess.ID)
		_ = sa.csrf.Drop(ctx, sess.ID)
		sa.events.Record(ctx, domain.EventLogout, rc, nil, sess.UserID)
	}
	sa.gate.ClearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// CSRFTokenHandler issues a fresh token for the current session, e.g. when
// a form-bearing page is served.
func (sa *SecurityAPI) CSRFTokenHandler(c echo.Context) error {
	sess, ok := middleware.SessionFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	token, err := sa.csrf.Issue(c.Request().Context(), sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusOK, map[string]string{"csrf_token": token})
}

// DashboardHandler serves the live security snapshot.
func (sa *SecurityAPI) DashboardHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, sa.events.Dashboard())
}

// ReportHandler aggregates events for a date range; default last 7 days.
func (sa *SecurityAPI) ReportHandler(c echo.Context) error {
	end := time.Now()
	start := end.AddDate(0, 0, -7)

	if raw := c.QueryParam("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start must be YYYY-MM-DD")
		}
		start = parsed
	}
	if raw := c.QueryParam("end"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "end must be YYYY-MM-DD")
		}
		end = parsed.AddDate(0, 0, 1) // inclusive end date
	}

	return c.JSON(http.StatusOK, sa.events.GenerateReport(start, end))
}

type resolveRequest struct {
	Notes string `json:"notes" form:"notes"`
}

// ResolveEventHandler marks an event as handled by the operator.
func (sa *SecurityAPI) ResolveEventHandler(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := sa.events.Resolve(c.Param("id"), req.Notes); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "event not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// StaticDirectory is a fixed-account UserDirectory used for the bootstrap
// operator credential from configuration.
type StaticDirectory struct {
	accounts map[string]User
}

// NewStaticDirectory builds a directory from a fixed set of accounts.
func NewStaticDirectory(accounts ...User) *StaticDirectory {
	m := make(map[string]User, len(accounts))
	for _, a := range accounts {
		m[a.Email] = a
	}
	return &StaticDirectory{accounts: m}
}

// FindByEmail implements UserDirectory.
func (d *StaticDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	a, ok := d.accounts[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &a, nil
}
