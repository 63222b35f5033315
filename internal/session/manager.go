package session

import (
	"context"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/observable"
)

// Status is the login state machine:
//
//	LoggedOut -> LoggingIn -> LoggedIn | LoginFailed
//	LoggedIn  -> LoggedOut (Logout)
//	LoginFailed -> LoggingIn (retry) | LoggedOut
type Status int

const (
	LoggedOut Status = iota
	LoggingIn
	LoggedIn
	LoginFailed
)

func (s Status) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	case LoginFailed:
		return "login_failed"
	}
	return "unknown"
}

// Credentials is what the Manager needs from an Authenticator.
type Credentials interface {
	Register(ctx context.Context, nu core.NewUser) (core.User, error)
	Authenticate(ctx context.Context, email, password string) (core.User, error)
}

// Manager is the single writer of the session state. Observers get read
// handles only.
type Manager struct {
	creds Credentials

	mu      sync.Mutex
	user    *observable.Value[*core.User]
	loading *observable.Value[bool]
	status  *observable.Value[Status]
	lastErr *observable.Value[error]
}

func NewManager(creds Credentials) *Manager {
	return &Manager{
		creds:   creds,
		user:    observable.New[*core.User](nil),
		loading: observable.New(false),
		status:  observable.New(LoggedOut),
		lastErr: observable.New[error](nil),
	}
}

// LoggedUser is nil while nobody is signed in.
func (m *Manager) LoggedUser() observable.Reader[*core.User] { return m.user }

func (m *Manager) IsLoading() observable.Reader[bool] { return m.loading }

func (m *Manager) Status() observable.Reader[Status] { return m.status }

// LastError holds the error of the most recent failed command.
func (m *Manager) LastError() observable.Reader[error] { return m.lastErr }

// Login authenticates and, on success, makes the user current. Commands are
// serialized; a second Login waits for the first to finish.
func (m *Manager) Login(ctx context.Context, email, password string) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loading.Set(true)
	m.status.Set(LoggingIn)
	defer m.loading.Set(false)

	u, err := m.creds.Authenticate(ctx, email, password)
	if err != nil {
		m.user.Set(nil)
		m.lastErr.Set(err)
		m.status.Set(LoginFailed)
		return core.User{}, err
	}

	m.user.Set(&u)
	m.lastErr.Set(nil)
	m.status.Set(LoggedIn)
	return u, nil
}

// Register creates an account without signing in.
func (m *Manager) Register(ctx context.Context, nu core.NewUser) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loading.Set(true)
	defer m.loading.Set(false)

	u, err := m.creds.Register(ctx, nu)
	m.lastErr.Set(err)
	return u, err
}

func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.user.Set(nil)
	m.lastErr.Set(nil)
	m.status.Set(LoggedOut)
}

// CurrentUserID returns the signed-in user's id, or false.
func (m *Manager) CurrentUserID() (int64, bool) {
	if u := m.user.Get(); u != nil {
		return u.ID, true
	}
	return 0, false
}
