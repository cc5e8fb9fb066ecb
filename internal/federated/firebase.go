package federated

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseVerifier is the TokenVerifier backed by the Firebase Admin SDK.
type FirebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier initializes the Firebase app and auth client.
// credentialsFile may be empty to use Application Default Credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app (project=%s): %w", projectID, err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// VerifyIDToken checks signature, expiry and revocation of idToken.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Claims, error) {
	token, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		if auth.IsIDTokenExpired(err) || auth.IsIDTokenInvalid(err) || auth.IsIDTokenRevoked(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("verifying id token: %w", err)
	}

	return &Claims{
		UID:   strings.TrimSpace(token.UID),
		Email: claimString(token.Claims, "email"),
		Name:  claimString(token.Claims, "name"),
	}, nil
}

// RevokeRefreshTokens invalidates every session of uid.
func (v *FirebaseVerifier) RevokeRefreshTokens(ctx context.Context, uid string) error {
	return v.client.RevokeRefreshTokens(ctx, uid)
}

func claimString(claims map[string]interface{}, key string) string {
	if raw, ok := claims[key]; ok {
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Verify FirebaseVerifier implements TokenVerifier interface at compile time.
var _ TokenVerifier = (*FirebaseVerifier)(nil)
