package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tokenkeeper/internal/netx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/google/uuid"
)

// Issuer mints access tokens and persists refresh tokens.
type Issuer struct {
	signer    *auth.Signer
	tokenCost int
	metrics   *metrics.Metrics
}

func NewIssuer(signer *auth.Signer, tokenCost int, m *metrics.Metrics) *Issuer {
	return &Issuer{signer: signer, tokenCost: tokenCost, metrics: m}
}

// IssueAccessToken signs the current identity of u.
func (i *Issuer) IssueAccessToken(u *models.User) (string, error) {
	tok, _, err := i.signer.IssueAccess(models.AccessTokenPayload{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
	})
	if err != nil {
		return "", signingError(err)
	}
	return tok, nil
}

// IssueRefreshToken signs a new refresh token for userID, stores its hash
// bound to the caller's network prefix and user agent, and returns the raw
// token. The raw value is not kept anywhere.
func (i *Issuer) IssueRefreshToken(ctx context.Context, repo refreshtokens.Repository, userID, ip, userAgent string) (string, error) {
	id := uuid.NewString()

	raw, expiresAt, err := i.signer.IssueRefresh(id, userID)
	if err != nil {
		return "", signingError(err)
	}

	hash, err := cryptox.Hash(raw, i.tokenCost)
	if err != nil {
		return "", newError(KindConfiguration, "cannot hash refresh token", err)
	}

	row := &models.RefreshToken{
		ID:         id,
		UserID:     userID,
		TokenHash:  hash,
		IPFragment: netx.TruncateIP(ip),
		UserAgent:  userAgent,
		ExpiresAt:  expiresAt,
	}
	if err := repo.Insert(ctx, row); err != nil {
		return "", internalError("cannot store refresh token", err)
	}

	i.metrics.TokenIssued()
	return raw, nil
}

func signingError(err error) error {
	if errors.Is(err, auth.ErrSecretNotSet) || errors.Is(err, auth.ErrIncompletePayload) {
		return newError(KindConfiguration, "cannot sign token", err)
	}
	return internalError("cannot sign token", err)
}
