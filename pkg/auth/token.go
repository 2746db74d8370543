// Package auth supplies bearer credentials for control-plane calls as
// an explicit capability passed into the client at construction. There
// is no ambient default credential state in this module; callers decide
// where tokens come from.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenSource yields the current bearer token for one outgoing request.
// Implementations must be safe for concurrent use: several polling
// sessions may share one source, and refresh happens on demand inside
// Token. The returned string is the raw token, without a scheme prefix.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

var ErrEmptyToken = errors.New("auth: empty bearer token")

// Static returns a TokenSource that always yields tok. Intended for
// tests and for short-lived CLI invocations with a pre-minted token.
func Static(tok string) TokenSource {
	return staticSource(tok)
}

type staticSource string

func (s staticSource) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrEmptyToken
	}
	return string(s), nil
}

// FromOAuth2 adapts an oauth2.TokenSource, which is how Google
// application-default and workload-identity credentials are exposed in
// Go. The source is wrapped in ReuseTokenSource so expired tokens are
// refreshed transparently and valid ones are served from memory.
func FromOAuth2(ts oauth2.TokenSource) TokenSource {
	return &oauth2Source{ts: oauth2.ReuseTokenSource(nil, ts)}
}

type oauth2Source struct{ ts oauth2.TokenSource }

func (s *oauth2Source) Token(_ context.Context) (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", fmt.Errorf("auth: fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return tok.AccessToken, nil
}
