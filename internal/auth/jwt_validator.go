package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TerminalClaim names the private claim carrying the register terminal.
const TerminalClaim = "terminal"

// ErrNoTerminal reports a token that is not bound to a register terminal.
var ErrNoTerminal = errors.New("auth: token not bound to a terminal")

// TokenValidator checks a parsed terminal token against the expected issuer,
// audience and signing algorithm.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate checks the registered claims of tok at now and returns the terminal
// it is bound to. Tokens without an expiry are rejected.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) (string, error) {
	if tok == nil {
		return "", errors.New("auth: token is nil")
	}
	switch {
	case algorithm == "":
		return "", errors.New("auth: token missing algorithm")
	case v.Algorithm != "" && algorithm != v.Algorithm:
		return "", fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithAcceptableSkew(v.ClockSkew),
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}

	raw, ok := tok.Get(TerminalClaim)
	if !ok {
		return "", ErrNoTerminal
	}
	terminal, _ := raw.(string)
	if terminal = strings.TrimSpace(terminal); terminal == "" {
		return "", ErrNoTerminal
	}
	return terminal, nil
}
