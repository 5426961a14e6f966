package credentials

import (
	"context"
	"errors"
	"log"
	"strings"
)

// Credentials is one resolved upstream account. It is immutable for the
// duration of a request and re-resolved on every login-page render, since
// the spreadsheet-backed sources may change between requests.
type Credentials struct {
	Slot     string
	Email    string
	Password string

	// Source names the provider that resolved the pair; a Chain fills it
	// in for audit trails.
	Source string
}

func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// ErrNotFound means a provider has no credentials for the slot. It is the
// only error a Chain treats as "try the next source"; anything else is
// logged and then also treated as not found, because an unresolved
// credential must only ever suppress auto-login, never fail a response.
var ErrNotFound = errors.New("credentials not found")

type Provider interface {
	// Name identifies the provider in logs ("env", "sheet", "csv").
	Name() string
	Resolve(ctx context.Context, slot string) (Credentials, error)
}

// Chain tries providers in order and returns the first hit.
type Chain struct {
	Service   string
	Providers []Provider
}

func NewChain(service string, providers ...Provider) *Chain {
	return &Chain{Service: service, Providers: providers}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Resolve(ctx context.Context, slot string) (Credentials, error) {
	for _, p := range c.Providers {
		creds, err := p.Resolve(ctx, slot)
		if err == nil && creds.Complete() {
			log.Printf("🔑 Credentials for %s slot %s resolved from %s", c.Service, slot, p.Name())
			creds.Source = p.Name()
			return creds, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("⚠️  Credential source %s failed for %s slot %s: %v", p.Name(), c.Service, slot, err)
		}
	}
	return Credentials{}, ErrNotFound
}

// envKey turns a service name into an env-var-safe token: "elevenlabs" ->
// "ELEVENLABS".
func envKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// looksLikeEmail is deliberately loose: the spreadsheet fallback only needs
// to tell an email column apart from a label column.
func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && strings.IndexByte(s[at:], '.') > 0
}
