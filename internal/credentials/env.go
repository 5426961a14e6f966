package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves credentials from per-service, per-slot environment
// variables: ELEVENLABS_EMAIL_2 / ELEVENLABS_PASSWORD_2 for service
// "elevenlabs", slot "2". Opaque slot keys are uppercased the same way.
type EnvProvider struct {
	Service string
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, slot string) (Credentials, error) {
	key := envKey(p.Service)
	suffix := strings.ToUpper(slot)

	email := os.Getenv(fmt.Sprintf("%s_EMAIL_%s", key, suffix))
	password := os.Getenv(fmt.Sprintf("%s_PASSWORD_%s", key, suffix))
	if email == "" || password == "" {
		return Credentials{}, ErrNotFound
	}
	return Credentials{Slot: slot, Email: email, Password: password}, nil
}
