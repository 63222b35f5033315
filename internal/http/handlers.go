package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.ready == nil {
		checks["storage"] = "ok"
	} else if err := s.ready(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	if s.overviewCache != nil {
		checks["cache"] = map[string]any{"overview_entries": s.overviewCache.Size(), "status": "ok"}
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients(), "status": "ok"}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_ms Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_ms gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_ms %.3f\n\n", float64(traceMetrics.AverageResponseTime.Microseconds())/1000)

	fmt.Fprintf(w, "# HELP transactions_created_total Transactions recorded through the API\n")
	fmt.Fprintf(w, "# TYPE transactions_created_total counter\n")
	fmt.Fprintf(w, "transactions_created_total %d\n\n", atomic.LoadInt64(&s.transactionsCreated))

	if s.overviewCache != nil {
		fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n")
		fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
		fmt.Fprintf(w, "cache_entries{type=\"overview\"} %d\n\n", s.overviewCache.Size())
	}

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", s.now().Sub(s.started).Seconds())
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpRegister, err)
		return
	}

	user, err := s.accounts.Register(r.Context(), core.NewUser{
		Email:    sanitizeInput(req.Email),
		Password: req.Password,
		FullName: sanitizeInput(req.FullName),
		Address:  sanitizeInput(req.Address),
	})
	if err != nil {
		writeError(w, r, log.OpRegister, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpLogin, err)
		return
	}

	user, err := s.accounts.Authenticate(r.Context(), sanitizeInput(req.Email), req.Password)
	if err != nil {
		writeError(w, r, log.OpLogin, err)
		return
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		writeError(w, r, log.OpLogin, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt.UTC(), User: user})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	if err := s.accounts.DeleteAccount(r.Context(), user.ID); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories := core.Categories()
	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryResponse{
			Name: c.String(),
			Kind: kindOf(c != core.Income),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListTransactions lists the caller's ledger, optionally narrowed by
// kind and category.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	query := r.URL.Query()
	kind := strings.TrimSpace(query.Get("kind"))
	categoryName := strings.TrimSpace(query.Get("category"))

	var (
		txs []core.Transaction
		err error
	)
	switch {
	case categoryName != "":
		var category core.Category
		if category, err = core.ParseCategory(categoryName); err == nil {
			txs, err = s.ledger.ListByCategory(r.Context(), user.ID, category)
		}
	case kind != "":
		var isExpense bool
		if isExpense, err = parseKind(kind); err == nil {
			if isExpense {
				txs, err = s.ledger.ListExpenses(r.Context(), user.ID)
			} else {
				txs, err = s.ledger.ListIncomes(r.Context(), user.ID)
			}
		}
	default:
		txs, err = s.ledger.ListForUser(r.Context(), user.ID)
	}
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	// The category fixes the kind; a contradictory kind empties the list.
	if categoryName != "" && kind != "" {
		isExpense, err := parseKind(kind)
		if err != nil {
			writeError(w, r, log.OpList, err)
			return
		}
		filtered := txs[:0]
		for _, tx := range txs {
			if tx.IsExpense == isExpense {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}

	writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}

func (s *Server) handleTransactionsByDay(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	groups, err := s.ledger.GroupByDay(r.Context(), user.ID, time.UTC)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayGroups(groups))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	fields, err := s.readTransaction(w, r)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	fields.UserID = user.ID

	created, err := s.ledger.AddTransaction(r.Context(), core.NewTransaction{
		UserID:      fields.UserID,
		IsExpense:   fields.IsExpense,
		Amount:      fields.Amount,
		Description: fields.Description,
		Category:    fields.Category,
		Date:        fields.Date,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	atomic.AddInt64(&s.transactionsCreated, 1)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", fmt.Sprintf("/api/transactions/%d", created.ID)).
		Body(toTransactionResponse(created)).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	fields, err := s.readTransaction(w, r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	existing, err := s.findTransaction(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	updated := existing
	updated.IsExpense = fields.IsExpense
	updated.Amount = fields.Amount
	updated.Description = fields.Description
	updated.Category = fields.Category
	if !fields.Date.IsZero() {
		updated.Date = fields.Date
	}
	if err := s.ledger.UpdateTransaction(r.Context(), updated); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	stored, err := s.findTransaction(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(stored))
}

// handleDeleteTransaction succeeds whether or not the transaction exists.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), core.Transaction{ID: id, UserID: user.ID}); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	balance, err := s.ledger.Balance(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": core.FormatAmount(balance)})
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	ref, err := parseDateParam(r, "date", s.today())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	days, err := s.ledger.WeeklySeries(r.Context(), user.ID, ref)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeeklyResponse(days))
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	ref, err := parseDateParam(r, "date", s.today())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	ov, err := s.ledger.Overview(r.Context(), user.ID, ref)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewResponse(ref, ov))
}

// today is the current calendar date at midnight UTC.
func (s *Server) today() time.Time {
	return core.CalendarDay(s.now(), time.UTC)
}

// readTransaction decodes and converts a transaction body. Field
// validation beyond parsing is left to the ledger.
func (s *Server) readTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, error) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return core.Transaction{}, err
	}

	isExpense, err := parseKind(req.Kind)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		return core.Transaction{}, err
	}

	var date time.Time
	if d := strings.TrimSpace(req.Date); d != "" {
		if date, err = parseDate(d); err != nil {
			return core.Transaction{}, err
		}
	}

	return core.Transaction{
		IsExpense:   isExpense,
		Amount:      amount,
		Description: sanitizeInput(req.Description),
		Category:    category,
		Date:        date,
	}, nil
}

// findTransaction returns the caller's transaction id, or ErrNotFound when
// it does not exist or belongs to someone else.
func (s *Server) findTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	txs, err := s.ledger.ListForUser(ctx, userID)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
}
