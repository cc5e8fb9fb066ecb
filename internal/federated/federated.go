// Package federated adapts Firebase Authentication to identity.FederatedProvider.
//
// The login page (outside this module) signs the visitor in with Firebase and
// hands the resulting ID token to StoreIDToken. Session verifies that token on
// every resolve; SignOut revokes the user's refresh tokens so the session
// cannot silently come back.
package federated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"storefront-sync/internal/identity"
	"storefront-sync/internal/persist"
)

const (
	namespace  = "federated"
	idTokenKey = "id_token"
)

// ErrInvalidToken means the stored ID token is expired, revoked or malformed.
var ErrInvalidToken = errors.New("invalid federated id token")

// Claims are the verified fields of an ID token.
type Claims struct {
	UID   string
	Email string
	Name  string
}

// TokenVerifier verifies ID tokens and revokes sessions.
type TokenVerifier interface {
	// VerifyIDToken returns ErrInvalidToken (wrapped) for tokens that can never verify.
	VerifyIDToken(ctx context.Context, idToken string) (*Claims, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Provider implements identity.FederatedProvider on a stored ID token.
type Provider struct {
	verifier TokenVerifier
	store    persist.Store
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewProvider creates a Provider. store is the shared persistence store; the
// provider confines itself to the "federated" namespace.
func NewProvider(verifier TokenVerifier, store persist.Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		verifier: verifier,
		store:    persist.Namespace(store, namespace),
		logger:   logger.With("component", "federated"),
	}
}

// StoreIDToken records the ID token issued by the login page.
func (p *Provider) StoreIDToken(idToken string) error {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return errors.New("empty id token")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Set(idTokenKey, idToken)
}

// Session verifies the stored ID token. An invalid token is discarded and
// reported as no session.
func (p *Provider) Session(ctx context.Context) (*identity.FederatedSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	claims, err := p.verifyStored(ctx)
	if err != nil || claims == nil {
		return nil, err
	}
	if claims.Email == "" {
		p.logger.Warn("federated token has no email claim", "uid", claims.UID)
		return nil, nil
	}
	return &identity.FederatedSession{
		UID:   claims.UID,
		Email: claims.Email,
		Name:  claims.Name,
	}, nil
}

// SignOut revokes the user's refresh tokens and forgets the stored ID token.
// The stored token is removed even when revocation fails.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	claims, err := p.verifyStored(ctx)
	if rerr := p.store.Remove(idTokenKey); rerr != nil {
		p.logger.Error("removing id token", "error", rerr)
	}
	if err != nil {
		return fmt.Errorf("verifying id token for sign-out: %w", err)
	}
	if claims == nil {
		return nil
	}
	if err := p.verifier.RevokeRefreshTokens(ctx, claims.UID); err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	p.logger.Info("federated session revoked", "uid", claims.UID)
	return nil
}

// verifyStored returns nil claims when no valid token is stored.
func (p *Provider) verifyStored(ctx context.Context) (*Claims, error) {
	token, ok := p.store.Get(idTokenKey)
	if !ok || token == "" {
		return nil, nil
	}

	claims, err := p.verifier.VerifyIDToken(ctx, token)
	if errors.Is(err, ErrInvalidToken) {
		p.logger.Info("discarding invalid federated token", "error", err)
		if rerr := p.store.Remove(idTokenKey); rerr != nil {
			p.logger.Error("removing id token", "error", rerr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Verify Provider implements FederatedProvider interface at compile time.
var _ identity.FederatedProvider = (*Provider)(nil)
