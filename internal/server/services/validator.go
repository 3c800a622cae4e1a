package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/netx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// Operation names the caller of the validation pipeline.
type Operation string

const (
	OpRefresh Operation = "refresh"
	OpLogout  Operation = "logout"
)

// Validator checks a presented refresh token against its stored row.
type Validator struct {
	signer  *auth.Signer
	clock   timex.Clock
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewValidator(signer *auth.Signer, clock timex.Clock, logger logging.Logger, m *metrics.Metrics) *Validator {
	return &Validator{signer: signer, clock: clock, logger: logger, metrics: m}
}

// Validate runs the pipeline and returns the stored row on success. The
// first failing step decides the error:
//
//	empty token, signature/exp claim, lookup, is_active, stored expiry,
//	device binding, token hash, owner.
func (v *Validator) Validate(ctx context.Context, repo refreshtokens.Repository, op Operation, raw, ip, userAgent string) (*models.RefreshToken, error) {
	row, err := v.validate(ctx, repo, raw, ip, userAgent)

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		args := []any{"operation", op, "kind", outcome}
		if row != nil {
			args = append(args, "token_id", row.ID)
		}
		if KindOf(err) == KindInternal {
			v.logger.Error(ctx, "refresh token validation failed", append(args, "error", err)...)
		} else {
			v.logger.Warn(ctx, "refresh token rejected", args...)
		}
		row = nil
	}
	v.metrics.Validation(string(op), outcome)

	return row, err
}

// validate may return the row alongside an error so the caller can log its id.
func (v *Validator) validate(ctx context.Context, repo refreshtokens.Repository, raw, ip, userAgent string) (*models.RefreshToken, error) {
	if raw == "" {
		return nil, ErrEmptyToken
	}

	claims, err := v.signer.ParseRefresh(raw)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, auth.ErrSecretNotSet):
		return nil, newError(KindConfiguration, "refresh secret is not set", err)
	case err != nil:
		return nil, ErrMalformedToken
	}

	row, err := repo.FindByTokenID(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, internalError("cannot load refresh token", err)
	}

	if !row.IsActive {
		return row, ErrRevokedToken
	}

	if !v.clock.Now().Before(row.ExpiresAt) {
		return row, ErrExpiredToken
	}

	if netx.TruncateIP(ip) != row.IPFragment || userAgent != row.UserAgent {
		return row, ErrDeviceMismatch
	}

	if err := cryptox.Compare(row.TokenHash, raw); err != nil {
		return row, ErrAuthentication
	}

	if claims.UserID != row.UserID {
		return row, ErrAuthentication
	}

	return row, nil
}
