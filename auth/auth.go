// Package auth provides email and password authentication with sessions.
package auth

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"net/mail"
	"strings"
	"time"
)

// DefaultSessionTTL is the session lifetime used if none is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

// MinPasswordLength is the minimum number of characters for passwords.
const MinPasswordLength = 8

// Session is an authenticated session of an account.
type Session struct {
	Token     string    `json:"token"`
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore persists sessions.
type SessionStore interface {
	// SaveSession saves the given Session until its expiry.
	SaveSession(ctx context.Context, session Session) error
	// SessionByToken retrieves the Session with the given token. If not found, an
	// errors.ErrNotFound error is returned.
	SessionByToken(ctx context.Context, token string) (Session, error)
	// DeleteSession deletes the Session with the given token. Unknown tokens are
	// ignored.
	DeleteSession(ctx context.Context, token string) error
}

// Store is the account persistence needed by Service.
type Store interface {
	CreateAccount(ctx context.Context, account store.Account) (store.Account, error)
	AccountByEmail(ctx context.Context, email string) (store.Account, error)
}

// Config for Service.
type Config struct {
	// SessionTTL is the lifetime of new sessions.
	SessionTTL time.Duration
	// BcryptCost is the cost for hashing passwords. If zero, bcrypt.DefaultCost
	// is used.
	BcryptCost int
	// AdminEmails are emails of accounts that are granted admin rights. They are
	// checked on every sign-in, so accounts created before their email was added
	// are promoted as well.
	AdminEmails []string
}

// Service handles sign-up, sign-in and sessions.
type Service struct {
	logger   *zap.Logger
	config   Config
	store    Store
	sessions SessionStore
	admins   map[string]struct{}
	// dummyHash is compared against when signing in with an unknown email, so
	// that the response takes as long as for a wrong password.
	dummyHash []byte
	// comparePassword checks a password against its hash.
	comparePassword func(hash []byte, password []byte) error
	// now returns the current time.
	now func() time.Time
}

// NewService creates a new Service.
func NewService(logger *zap.Logger, config Config, store Store, sessions SessionStore) *Service {
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	admins := make(map[string]struct{}, len(config.AdminEmails))
	for _, email := range config.AdminEmails {
		admins[normalizeEmail(email)] = struct{}{}
	}
	dummyHash, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), config.BcryptCost)
	if err != nil {
		logger.Warn("generate dummy password hash", zap.Error(err))
	}
	return &Service{
		logger:          logger,
		config:          config,
		store:           store,
		sessions:        sessions,
		admins:          admins,
		dummyHash:       dummyHash,
		comparePassword: bcrypt.CompareHashAndPassword,
		now:             time.Now,
	}
}

func normalizeEmail(email string) string {
	return store.NormalizeEmail(email)
}

// SignUp creates a new account with the given credentials.
func (s *Service) SignUp(ctx context.Context, email string, password string, name string) (store.Account, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return store.Account{}, errors.NewBadRequestErr("invalid email", err, errors.Details{"email": email})
	}
	if len(password) < MinPasswordLength {
		return store.Account{}, errors.NewBadRequestErr(fmt.Sprintf("password must have at least %d characters",
			MinPasswordLength), nil, nil)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Account{}, errors.NewBadRequestErr("missing name", nil, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return store.Account{}, errors.NewInternalErrorFromErr(err, "hash password", nil)
	}
	_, isAdmin := s.admins[email]
	account, err := s.store.CreateAccount(ctx, store.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		IsAdmin:      isAdmin,
	})
	if err != nil {
		return store.Account{}, errors.Wrap(err, "create account", nil)
	}
	s.logger.Info("account created", zap.String("account_id", account.ID.String()), zap.Bool("is_admin", isAdmin))
	return account, nil
}

// SignIn checks the given credentials and creates a new Session. Wrong
// credentials result in an errors.ErrUnauthorized error without revealing
// whether the account exists.
func (s *Service) SignIn(ctx context.Context, email string, password string) (Session, error) {
	account, err := s.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.HasCode(err, errors.ErrNotFound) {
			_ = s.comparePassword(s.dummyHash, []byte(password))
			return Session{}, errors.NewUnauthorizedError("invalid credentials")
		}
		return Session{}, errors.Wrap(err, "account by email", nil)
	}
	err = s.comparePassword(account.PasswordHash, []byte(password))
	if err != nil {
		return Session{}, errors.NewUnauthorizedError("invalid credentials")
	}
	_, isConfiguredAdmin := s.admins[account.Email]
	session := Session{
		Token:     uuid.New().String(),
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		IsAdmin:   account.IsAdmin || isConfiguredAdmin,
		ExpiresAt: s.now().Add(s.config.SessionTTL).UTC(),
	}
	err = s.sessions.SaveSession(ctx, session)
	if err != nil {
		return Session{}, errors.Wrap(err, "save session", nil)
	}
	return session, nil
}

// Session retrieves the active Session for the given token. Unknown or expired
// sessions result in an errors.ErrUnauthorized error.
func (s *Service) Session(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, errors.NewUnauthorizedError("missing session token")
	}
	session, err := s.sessions.SessionByToken(ctx, token)
	if err != nil {
		if errors.HasCode(err, errors.ErrNotFound) {
			return Session{}, errors.NewUnauthorizedError("unknown session")
		}
		return Session{}, errors.Wrap(err, "session by token", nil)
	}
	if !s.now().Before(session.ExpiresAt) {
		return Session{}, errors.NewUnauthorizedError("session expired")
	}
	return session, nil
}

// SignOut deletes the Session with the given token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	err := s.sessions.DeleteSession(ctx, token)
	if err != nil {
		return errors.Wrap(err, "delete session", nil)
	}
	return nil
}
