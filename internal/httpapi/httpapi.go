package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"poscore/backend/internal/domain"
	"poscore/backend/internal/logger"
	"poscore/backend/internal/metrics"
	"poscore/backend/internal/service"
)

const (
	roleAdmin   = domain.RoleAdmin
	roleCashier = domain.RoleCashier
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	metrics       *metrics.Metrics
	log           *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, m *metrics.Metrics, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		metrics:       m,
		log:           log,
	}
}

// attemptLimiter allows max attempts per key in any window, refilling
// continuously. Keys idle for a full window are dropped.
type attemptLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	window  time.Duration
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:   rate.Every(window / time.Duration(max)),
		burst:   max,
		window:  window,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.entries {
		if now.Sub(e.seen) > l.window {
			delete(l.entries, k)
		}
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.seen = now
	return entry.limiter.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	both := []string{roleCashier, roleAdmin}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, both...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, roleAdmin))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, both...))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct, roleAdmin))
	mux.HandleFunc("GET /api/v1/products/{id}/movements", a.requireAuth(a.handleProductMovements, both...))
	mux.HandleFunc("POST /api/v1/products/{id}/movements", a.requireAuth(a.handleStockMovement, roleAdmin))
	mux.HandleFunc("GET /api/v1/products/{id}/reconciliation", a.requireAuth(a.handleReconcile, roleAdmin))
	mux.HandleFunc("GET /api/v1/inventory/movements", a.requireAuth(a.handleListMovements, roleAdmin))

	mux.HandleFunc("GET /api/v1/discounts", a.requireAuth(a.handleListDiscounts, roleAdmin))
	mux.HandleFunc("POST /api/v1/discounts", a.requireAuth(a.handleCreateDiscount, roleAdmin))
	mux.HandleFunc("GET /api/v1/discounts/validate", a.requireAuth(a.handleValidateDiscount, both...))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, both...))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleCreateSale, both...))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale, both...))
	mux.HandleFunc("POST /api/v1/sales/{id}/confirm", a.requireAuth(a.handleConfirmSale, both...))
	mux.HandleFunc("POST /api/v1/sales/{id}/cancel", a.requireAuth(a.handleCancelSale, roleAdmin))

	mux.HandleFunc("GET /api/v1/purchases", a.requireAuth(a.handleListPurchases, roleAdmin))
	mux.HandleFunc("POST /api/v1/purchases", a.requireAuth(a.handleCreatePurchase, roleAdmin))
	mux.HandleFunc("GET /api/v1/purchases/{id}", a.requireAuth(a.handleGetPurchase, roleAdmin))
	mux.HandleFunc("POST /api/v1/purchases/{id}/receive", a.requireAuth(a.handleReceivePurchase, roleAdmin))
	mux.HandleFunc("POST /api/v1/purchases/{id}/cancel", a.requireAuth(a.handleCancelPurchase, roleAdmin))

	mux.HandleFunc("GET /api/v1/returns", a.requireAuth(a.handleListReturns, both...))
	mux.HandleFunc("POST /api/v1/returns", a.requireAuth(a.handleCreateReturn, both...))
	mux.HandleFunc("GET /api/v1/returns/{id}", a.requireAuth(a.handleGetReturn, both...))
	mux.HandleFunc("POST /api/v1/returns/{id}/cancel", a.requireAuth(a.handleCancelReturn, roleAdmin))

	mux.HandleFunc("POST /api/v1/cash-sessions/open", a.requireAuth(a.handleOpenSession, both...))
	mux.HandleFunc("GET /api/v1/cash-sessions/active", a.requireAuth(a.handleActiveSession, both...))
	mux.HandleFunc("GET /api/v1/cash-sessions", a.requireAuth(a.handleListSessions, roleAdmin))
	mux.HandleFunc("GET /api/v1/cash-sessions/{id}", a.requireAuth(a.handleSessionDetail, both...))
	mux.HandleFunc("POST /api/v1/cash-sessions/{id}/close", a.requireAuth(a.handleCloseSession, both...))
	mux.HandleFunc("POST /api/v1/cash-sessions/{id}/movements", a.requireAuth(a.handleCashMovement, both...))
	mux.HandleFunc("GET /api/v1/cash-sessions/{id}/balance", a.requireAuth(a.handleSessionBalance, both...))

	mux.HandleFunc("GET /api/v1/clients", a.requireAuth(a.handleListClients, both...))
	mux.HandleFunc("POST /api/v1/clients", a.requireAuth(a.handleCreateClient, roleAdmin))
	mux.HandleFunc("GET /api/v1/suppliers", a.requireAuth(a.handleListSuppliers, roleAdmin))
	mux.HandleFunc("POST /api/v1/suppliers", a.requireAuth(a.handleCreateSupplier, roleAdmin))
	mux.HandleFunc("GET /api/v1/payment-methods", a.requireAuth(a.handleListPaymentMethods, both...))
	mux.HandleFunc("POST /api/v1/payment-methods", a.requireAuth(a.handleCreatePaymentMethod, roleAdmin))

	mux.HandleFunc("GET /api/v1/users/cashiers", a.requireAuth(a.handleListCashiers, roleAdmin))
	mux.HandleFunc("POST /api/v1/users/cashiers", a.requireAuth(a.handleCreateCashier, roleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		ctx = logger.WithContext(ctx, logger.FromContextOr(ctx, a.log).With(zap.String("actor_id", actor.Username)))
		next(w, r.WithContext(ctx))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		reqLog := a.log.With(zap.String("method", r.Method), zap.String("path", r.URL.Path))
		r = r.WithContext(logger.WithContext(r.Context(), reqLog))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		a.metrics.HTTPRequest(route, strconv.Itoa(rec.status))
		reqLog.Info("request",
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": user})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInvalidState, domain.KindSessionAlreadyOpen, domain.KindSessionNotOpen:
		return http.StatusConflict
	case domain.KindInsufficientStock, domain.KindInvalidAdjustment, domain.KindReturnExceedsAvailable, domain.KindDiscountInvalid:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeDomainError renders a service error with its stable kind. Internal
// errors carry no detail.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	body := map[string]any{"kind": kind}
	if status >= 500 {
		body["error"] = "internal server error"
		writeJSON(w, status, body)
		return
	}
	body["error"] = err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Reason != "" {
		body["reason"] = de.Reason
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
