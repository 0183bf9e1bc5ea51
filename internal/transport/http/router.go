package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authmodels "eduid/internal/auth/models"
	authservice "eduid/internal/auth/service"
	"eduid/internal/platform/health"
	"eduid/internal/platform/metrics"
	"eduid/internal/platform/middleware"
	rbacmodels "eduid/internal/rbac/models"
	"eduid/internal/token"
	"eduid/internal/transport/http/json"
	dErrors "eduid/pkg/domain-errors"

	"github.com/google/uuid"
)

// AuthService is the orchestrator surface the transport needs.
type AuthService interface {
	Register(ctx context.Context, req authservice.RegisterRequest) (*authservice.AuthResult, error)
	Login(ctx context.Context, email, password string) (*authservice.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	Logout(ctx context.Context, accessToken, refreshToken string)
	GetCurrentUser(ctx context.Context, accessToken string) (*authmodels.Account, error)
	UpdateProfile(ctx context.Context, accountID uuid.UUID, name, phone, language string) (*authmodels.Account, error)
	SendVerificationCode(ctx context.Context, email string, purpose authmodels.CodePurpose) (*authservice.IssueResult, error)
	VerifyCode(ctx context.Context, email, code string, purpose authmodels.CodePurpose) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// RoleService is the role application workflow surface the transport needs.
type RoleService interface {
	Apply(ctx context.Context, userID uuid.UUID, role authmodels.Role, reason string) (*rbacmodels.RoleApplication, error)
	Review(ctx context.Context, applicationID, adminID uuid.UUID, approve bool, comment string) (*rbacmodels.RoleApplication, error)
	Cancel(ctx context.Context, applicationID, userID uuid.UUID) error
	ListPending(ctx context.Context, adminID uuid.UUID) ([]*rbacmodels.RoleApplication, error)
	GetDetail(ctx context.Context, applicationID, requesterID uuid.UUID) (*rbacmodels.RoleApplication, error)
	GetHistory(ctx context.Context, applicationID, adminID uuid.UUID) ([]*rbacmodels.HistoryEntry, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*rbacmodels.RoleApplication, error)
}

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	auth    AuthService
	roles   RoleService
	health  *health.Handler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler wires the transport over the domain services.
func NewHandler(auth AuthService, roles RoleService, hc *health.Handler, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		auth:    auth,
		roles:   roles,
		health:  hc,
		logger:  logger,
		metrics: m,
	}
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(h.observeLatency)

	if h.health != nil {
		h.health.Register(r)
	} else {
		r.Get("/healthz", h.handleHealthz)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/verification-code", h.handleSendVerificationCode)
		r.Post("/verification-code/verify", h.handleVerifyCode)
		r.Post("/password-reset", h.handleRequestPasswordReset)
		r.Post("/password-reset/confirm", h.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)
			r.Get("/me", h.handleGetMe)
			r.Put("/me", h.handleUpdateMe)
		})
	})

	r.Route("/roles/applications", func(r chi.Router) {
		r.Use(h.requireUser)
		r.Post("/", h.handleApply)
		r.Get("/", h.handleListOwn)
		r.Get("/pending", h.handleListPending)
		r.Get("/{applicationID}", h.handleGetApplication)
		r.Delete("/{applicationID}", h.handleCancelApplication)
		r.Post("/{applicationID}/review", h.handleReviewApplication)
		r.Get("/{applicationID}/history", h.handleApplicationHistory)
	})

	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// observeLatency records per-endpoint latency once routing has resolved the
// pattern, so path parameters do not explode label cardinality.
func (h *Handler) observeLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				h.metrics.EndpointLatency.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
			}
		}
	})
}

type accountKey struct{}

// requireUser authenticates the bearer token and stashes the resolved account
// in the request context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}
		acct, err := h.auth.GetCurrentUser(r.Context(), tokenString)
		if err != nil {
			WriteError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), accountKey{}, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accountFromContext returns the authenticated account placed by requireUser.
func accountFromContext(ctx context.Context) (*authmodels.Account, bool) {
	acct, ok := ctx.Value(accountKey{}).(*authmodels.Account)
	return acct, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
