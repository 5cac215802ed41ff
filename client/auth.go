// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

// CredentialType selects the authentication scheme attached to
// outbound requests.
type CredentialType string

// Credential types.
const (
	CredentialNone   CredentialType = "none"
	CredentialAPIKey CredentialType = "apiKey"
	CredentialBearer CredentialType = "bearer"
)

// DefaultAPIKeyHeader is the header carrying an API key unless the
// caller overrides it.
const DefaultAPIKeyHeader = "x-api-key"

// Credentials selects exactly one authentication scheme. A request
// carries either the API key header or a bearer Authorization header,
// never both.
type Credentials struct {
	Type CredentialType

	// APIKey is sent in APIKeyHeader when Type is CredentialAPIKey.
	APIKey string
	// APIKeyHeader overrides DefaultAPIKeyHeader.
	APIKeyHeader string

	// Token is sent as "Authorization: Bearer <token>" when Type is
	// CredentialBearer.
	Token string
}

// APIKeyCredentials creates API key credentials.
func APIKeyCredentials(key string) *Credentials {
	return &Credentials{Type: CredentialAPIKey, APIKey: key}
}

// BearerCredentials creates bearer token credentials.
func BearerCredentials(token string) *Credentials {
	return &Credentials{Type: CredentialBearer, Token: token}
}

// Validate ensures the credentials select exactly one scheme.
func (c *Credentials) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Type {
	case CredentialNone, "":
		if c.APIKey != "" || c.Token != "" {
			return fmt.Errorf("credentials carry material but no scheme")
		}
	case CredentialAPIKey:
		if c.APIKey == "" {
			return fmt.Errorf("API key credentials require a key")
		}
		if c.Token != "" {
			return fmt.Errorf("API key credentials must not carry a bearer token")
		}
	case CredentialBearer:
		if c.Token == "" {
			return fmt.Errorf("bearer credentials require a token")
		}
		if c.APIKey != "" {
			return fmt.Errorf("bearer credentials must not carry an API key")
		}
	default:
		return fmt.Errorf("unknown credential type: %q", c.Type)
	}
	return nil
}

// Expired reports whether a bearer token is known to have expired.
// Best-effort: only tokens that parse as JWTs carry a local expiry;
// opaque tokens never expire locally.
func (c *Credentials) Expired() bool {
	if c == nil || c.Type != CredentialBearer {
		return false
	}
	tok, err := jwt.ParseInsecure([]byte(c.Token))
	if err != nil {
		return false
	}
	if exp, ok := tok.Expiration(); ok && !exp.IsZero() {
		return time.Now().After(exp)
	}
	return false
}

// apply sets exactly one authentication header on req. An expired
// bearer JWT is rejected before any network I/O.
func (c *Credentials) apply(req *http.Request) error {
	if c == nil || c.Type == CredentialNone || c.Type == "" {
		return nil
	}
	if err := c.Validate(); err != nil {
		return newError(KindAuthentication, "auth", err)
	}
	switch c.Type {
	case CredentialAPIKey:
		header := c.APIKeyHeader
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		req.Header.Set(header, c.APIKey)
	case CredentialBearer:
		if c.Expired() {
			return newError(KindAuthentication, "auth", fmt.Errorf("bearer token is expired"))
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return nil
}
