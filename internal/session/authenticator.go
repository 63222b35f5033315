// Package session owns registration, credential checks and the state of
// the signed-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// LedgerPurger removes every transaction of a user.
type LedgerPurger interface {
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// Authenticator implements authenticate(email, password) over a UserStore.
type Authenticator struct {
	users  storage.UserStore
	ledger LedgerPurger
	logger *log.Logger
}

func NewAuthenticator(users storage.UserStore, ledger LedgerPurger, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Authenticator{
		users:  users,
		ledger: ledger,
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// Register validates nu, hashes the password and stores the user. A taken
// email fails with core.ErrDuplicateEmail.
func (a *Authenticator) Register(ctx context.Context, nu core.NewUser) (core.User, error) {
	if err := nu.Validate(); err != nil {
		return core.User{}, err
	}

	email := core.NormalizeEmail(nu.Email)
	if _, err := a.users.GetByEmail(ctx, email); err == nil {
		return core.User{}, core.ErrDuplicateEmail
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := core.HashPassword(nu.Password)
	if err != nil {
		return core.User{}, err
	}

	created, err := a.users.InsertUser(ctx, core.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(nu.FullName),
		Address:      strings.TrimSpace(nu.Address),
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateEmail) {
			return core.User{}, err
		}
		return core.User{}, fmt.Errorf("register user: %w", err)
	}

	a.logger.InfoContext(ctx, "User registered", log.FieldUserID, created.ID, log.FieldOperation, log.OpRegister)
	return created, nil
}

// Authenticate returns the user whose credentials match. Unknown emails
// and wrong passwords both fail with core.ErrAuthenticationFailed.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	u, err := a.users.GetByEmailAndPassword(ctx, core.NormalizeEmail(email), password)
	if errors.Is(err, core.ErrNotFound) {
		a.logger.WarnContext(ctx, "Login rejected", log.FieldOperation, log.OpLogin)
		return core.User{}, core.ErrAuthenticationFailed
	}
	if err != nil {
		return core.User{}, fmt.Errorf("authenticate: %w", err)
	}
	return u, nil
}

// User looks up a registered user by id.
func (a *Authenticator) User(ctx context.Context, id int64) (core.User, error) {
	return a.users.GetByID(ctx, id)
}

// DeleteAccount removes the user's ledger and then the user.
func (a *Authenticator) DeleteAccount(ctx context.Context, userID int64) error {
	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if a.ledger != nil {
		if err := a.ledger.DeleteAllForUser(ctx, u.ID); err != nil {
			return fmt.Errorf("delete account ledger: %w", err)
		}
	}
	if err := a.users.DeleteUser(ctx, u); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	a.logger.InfoContext(ctx, "Account deleted", log.FieldUserID, u.ID, log.FieldOperation, log.OpDelete)
	return nil
}
