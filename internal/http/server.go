package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
)

// Ledger is the part of the ledger service the API exposes.
type Ledger interface {
	AddTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, tx core.Transaction) error
	ListForUser(ctx context.Context, userID int64) ([]core.Transaction, error)
	ListExpenses(ctx context.Context, userID int64) ([]core.Transaction, error)
	ListIncomes(ctx context.Context, userID int64) ([]core.Transaction, error)
	ListByCategory(ctx context.Context, userID int64, category core.Category) ([]core.Transaction, error)
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	WeeklySeries(ctx context.Context, userID int64, ref time.Time) ([]core.DayTotal, error)
	GroupByDay(ctx context.Context, userID int64, loc *time.Location) ([]core.DayGroup, error)
	Overview(ctx context.Context, userID int64, ref time.Time) (core.Overview, error)
}

// Accounts registers, authenticates and removes users.
type Accounts interface {
	Register(ctx context.Context, nu core.NewUser) (core.User, error)
	Authenticate(ctx context.Context, email, password string) (core.User, error)
	User(ctx context.Context, id int64) (core.User, error)
	DeleteAccount(ctx context.Context, userID int64) error
}

// Sizer reports the number of cached entries.
type Sizer interface {
	Size() int
}

// Dependencies are the collaborators NewServer wires into the routes.
type Dependencies struct {
	Ledger   Ledger
	Accounts Accounts
	Tokens   *auth.TokenManager
	// Ready reports whether the storage backend can serve requests.
	Ready         func(context.Context) error
	OverviewCache Sizer
	Logger        *log.Logger
	// Now defaults to time.Now; dates without an explicit value use it.
	Now func() time.Time
}

// Config holds the HTTP tunables.
type Config struct {
	Addr               string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger        Ledger
	accounts      Accounts
	tokens        *auth.TokenManager
	ready         func(context.Context) error
	overviewCache Sizer
	logger        *log.Logger
	now           func() time.Time
	started       time.Time

	transactionsCreated int64

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	stopBackground context.CancelFunc
	shutdownOnce   sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. The rate limiter's cleanup runs until Shutdown.
func NewServer(cfg Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	detector := security.NewDetector()
	s := &Server{
		ledger:           deps.Ledger,
		accounts:         deps.Accounts,
		tokens:           deps.Tokens,
		ready:            deps.Ready,
		overviewCache:    deps.OverviewCache,
		logger:           logger,
		now:              now,
		started:          now(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	bg, cancel := context.WithCancel(context.Background())
	s.stopBackground = cancel
	go s.rateLimiter.Run(bg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	mux.Handle("GET /api/account", s.requireUser(s.handleAccount))
	mux.Handle("DELETE /api/account", s.requireUser(s.handleDeleteAccount))

	mux.Handle("GET /api/transactions", s.requireUser(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.requireUser(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions/days", s.requireUser(s.handleTransactionsByDay))
	mux.Handle("PUT /api/transactions/{id}", s.requireUser(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.requireUser(s.handleDeleteTransaction))

	mux.Handle("GET /api/balance", s.requireUser(s.handleBalance))
	mux.Handle("GET /api/weekly", s.requireUser(s.handleWeekly))
	mux.Handle("GET /api/overview", s.requireUser(s.handleOverview))

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = detector.Middleware(true)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background work.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.stopBackground()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requireUser resolves the bearer token to a stored user before calling
// next. Tokens of deleted accounts are rejected.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			UnauthorizedError("missing bearer token").Write(w)
			return
		}
		claims, err := s.tokens.Parse(raw)
		if err != nil {
			UnauthorizedError(core.ErrAuthenticationFailed.Error()).Write(w)
			return
		}
		id, _ := claims.UserID()

		user, err := s.accounts.User(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				UnauthorizedError(core.ErrAuthenticationFailed.Error()).Write(w)
				return
			}
			writeError(w, r, log.OpRead, err)
			return
		}

		ctx := withUser(r.Context(), user)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, user.ID))
		next(w, r.WithContext(ctx))
	})
}
