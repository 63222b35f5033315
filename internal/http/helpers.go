package http

import (
	"context"
	"errors"
	"net/http"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

type userContextKey struct{}

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// userFromContext returns the caller resolved by requireUser.
func userFromContext(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(core.User)
	return u, ok
}

// errorResponse maps a domain error to its HTTP response. Unexpected errors
// are logged and hidden behind a generic 500.
func errorResponse(r *http.Request, op string, err error) *JSONResponseBuilder {
	switch {
	case errors.Is(err, errBadRequest):
		return BadRequestError(err.Error())
	case core.IsValidation(err):
		return UnprocessableEntityError(err.Error())
	case errors.Is(err, core.ErrDuplicateEmail):
		return ConflictError(err.Error())
	case errors.Is(err, core.ErrAuthenticationFailed), errors.Is(err, auth.ErrInvalidToken):
		return UnauthorizedError(core.ErrAuthenticationFailed.Error())
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	}

	logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
	log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, op,
		log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
	return InternalServerError()
}

func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	errorResponse(r, op, err).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
