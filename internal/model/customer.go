package model

import (
	"strings"
	"time"
)

// IdentityOrigin names the session source that is authoritative for an identity.
type IdentityOrigin string

const (
	OriginFederated IdentityOrigin = "federated"
	OriginNative    IdentityOrigin = "native"
)

// CustomerIdentity is the single logical "current customer".
type CustomerIdentity struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	FirstName   string         `json:"firstName,omitempty"`
	LastName    string         `json:"lastName,omitempty"`
	DisplayName string         `json:"displayName"`
	Origin      IdentityOrigin `json:"origin"`
}

// Customer is the backend's customer record.
type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// CustomerInput creates a backend customer. An empty Password creates a record
// that can never be logged into directly.
type CustomerInput struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// AccessToken is a backend-native credential.
type AccessToken struct {
	Token     string    `json:"accessToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry. A zero expiry never expires.
func (t AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// NormalizeEmail lower-cases and trims an email for use as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayNameFor picks a display name from first/last name, falling back to the email.
func DisplayNameFor(first, last, email string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name != "" {
		return name
	}
	return email
}
