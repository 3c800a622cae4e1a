// Package services contains server-side business logic. UserService is the
// entry point for registration, login, token refresh and logout; the
// refresh token pipeline itself lives in Issuer and Validator.
package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// AuthResult is returned by Register and Login. RefreshToken is the only
// copy of the raw refresh token.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// UserService provides authentication-related operations.
type UserService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	signer       *auth.Signer
	issuer       *Issuer
	validator    *Validator
	passwordCost int
	clock        timex.Clock
	logger       logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

// Option customizes a UserService.
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics *metrics.Metrics
	clock   timex.Clock
}

func WithLogger(l logging.Logger) Option    { return func(o *options) { o.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }
func WithClock(c timex.Clock) Option        { return func(o *options) { o.clock = c } }

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *UserService {
	o := options{logger: logging.Discard(), clock: timex.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("module", "services")

	signer := auth.NewSigner(cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration, o.clock)

	return &UserService{
		db:           db,
		repomanager:  m,
		signer:       signer,
		issuer:       NewIssuer(signer, cfg.TokenHashCost, o.metrics),
		validator:    NewValidator(signer, o.clock, logger, o.metrics),
		passwordCost: cfg.PasswordHashCost,
		clock:        o.clock,
		logger:       logger,
	}
}

// Register creates a USER account and issues its first token pair. The user
// row and the refresh token row are written in one transaction.
func (s *UserService) Register(ctx context.Context, in RegisterInput, ip, userAgent string) (*AuthResult, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	// The unique constraint is authoritative; this only spares a hash.
	if _, err := s.repomanager.Users(s.db).GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrDuplicateRegistration
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, internalError("cannot look up user", err)
	}

	user, refresh, err := s.createUser(ctx, in, common.RoleUser, ip, userAgent, true)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return &AuthResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// CreateUser creates an account with the given role without issuing tokens.
func (s *UserService) CreateUser(ctx context.Context, in RegisterInput, role string) (*models.User, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if role != common.RoleUser && role != common.RoleAdmin {
		return nil, validationError("unknown role " + role)
	}

	user, _, err := s.createUser(ctx, in, role, "", "", false)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user created", "user_id", user.ID, "role", role)
	return user, nil
}

func (s *UserService) createUser(ctx context.Context, in RegisterInput, role, ip, userAgent string, withToken bool) (*models.User, string, error) {
	hash, err := cryptox.Hash(in.Password, s.passwordCost)
	if err != nil {
		return nil, "", newError(KindConfiguration, "cannot hash password", err)
	}

	var (
		user    *models.User
		refresh string
	)
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			Email:        in.Email,
			PasswordHash: hash,
			Role:         role,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
		})
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return ErrDuplicateRegistration
			}
			return internalError("cannot create user", err)
		}
		user = created

		if !withToken {
			return nil
		}
		refresh, err = s.issuer.IssueRefreshToken(ctx, s.repomanager.RefreshTokens(tx), created.ID, ip, userAgent)
		return err
	})
	if err != nil {
		var se *Error
		if !errors.As(err, &se) {
			return nil, "", internalError("transaction failed", err)
		}
		return nil, "", err
	}
	return user, refresh, nil
}

// Login checks credentials and issues a token pair. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password, ip, userAgent string) (*AuthResult, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = cryptox.Compare(s.dummy(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, internalError("cannot look up user", err)
	}

	if err := cryptox.Compare(user.PasswordHash, password); err != nil {
		s.logger.Warn(ctx, "login rejected", "user_id", user.ID, "kind", KindInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	refresh, err := s.issuer.IssueRefreshToken(ctx, s.repomanager.RefreshTokens(s.db), user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}
	access, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return &AuthResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// dummy is a hash of a throwaway secret at the password cost, compared
// against when the email is unknown.
func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := cryptox.Hash("tokenkeeper-dummy-password", s.passwordCost)
		if err != nil {
			h, _ = cryptox.Hash("tokenkeeper-dummy-password", cryptox.DefaultCost)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Refresh validates the refresh token and mints a new access token from the
// owner's current record. The refresh token is reused as is.
func (s *UserService) Refresh(ctx context.Context, raw, ip, userAgent string) (string, error) {
	tokens := s.repomanager.RefreshTokens(s.db)

	row, err := s.validator.Validate(ctx, tokens, OpRefresh, raw, ip, userAgent)
	if err != nil {
		return "", err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", ErrAuthentication
		}
		return "", internalError("cannot load user", err)
	}

	access, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return "", err
	}

	if err := tokens.Touch(ctx, row.ID, s.clock.Now()); err != nil {
		s.logger.Warn(ctx, "cannot record token use", "token_id", row.ID, "error", err)
	}

	return access, nil
}

// Logout validates the refresh token and deactivates it. A concurrent
// revoker winning the race is still a successful logout.
func (s *UserService) Logout(ctx context.Context, raw, ip, userAgent string) error {
	tokens := s.repomanager.RefreshTokens(s.db)

	row, err := s.validator.Validate(ctx, tokens, OpLogout, raw, ip, userAgent)
	if err != nil {
		return err
	}

	changed, err := tokens.UpdateActiveFlag(ctx, row.ID, false, s.clock.Now())
	if err != nil {
		return internalError("cannot revoke refresh token", err)
	}

	s.logger.Info(ctx, "refresh token revoked", "token_id", row.ID, "changed", changed)
	return nil
}

// Authenticate verifies an access token and returns the live user record.
// Tokens whose email or role no longer match the record are rejected.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	if accessToken == "" {
		return nil, ErrEmptyToken
	}

	claims, err := s.signer.ParseAccess(accessToken)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, auth.ErrSecretNotSet):
		return nil, newError(KindConfiguration, "access secret is not set", err)
	case err != nil:
		return nil, ErrMalformedToken
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrAuthentication
		}
		return nil, internalError("cannot load user", err)
	}

	if user.Email != claims.Email || user.Role != claims.Role {
		s.logger.Warn(ctx, "access token out of date", "user_id", user.ID, "kind", KindAuthenticationError)
		return nil, ErrAuthentication
	}
	return user, nil
}

// Profile returns the user record for userID.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("cannot load user", err)
	}
	return user, nil
}

// UpdatePassword replaces the password of userID.
func (s *UserService) UpdatePassword(ctx context.Context, userID, password, confirm string) error {
	if err := validatePassword(password, confirm); err != nil {
		return err
	}

	hash, err := cryptox.Hash(password, s.passwordCost)
	if err != nil {
		return newError(KindConfiguration, "cannot hash password", err)
	}

	if err := s.repomanager.Users(s.db).UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrUserNotFound
		}
		return internalError("cannot update password", err)
	}

	s.logger.Info(ctx, "password updated", "user_id", userID)
	return nil
}
