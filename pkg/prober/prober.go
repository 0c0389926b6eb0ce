package prober

import (
	"context"
	"log/slog"

	"github.com/medvault/passkey/pkg/options"
	"github.com/medvault/passkey/pkg/webauthn"
)

// Prober answers the two capability questions gating every workflow
// operation. Both probes are read-only and never fail: an errored platform
// query reads as "not available".
type Prober struct {
	authenticator webauthn.Authenticator
	logger        *slog.Logger
}

func New(authenticator webauthn.Authenticator, opts ...options.Option) *Prober {
	oo := options.NewOptions(opts...)

	return &Prober{
		authenticator: authenticator,
		logger:        oo.Logger,
	}
}

// IsSupported reports whether a platform credential API exists in this
// context at all.
func (p *Prober) IsSupported() bool {
	return p.authenticator != nil
}

// IsPlatformAuthenticatorAvailable queries the platform for a usable
// user-verifying authenticator. The platform's check may be slow; any error
// is logged and read as unavailable.
func (p *Prober) IsPlatformAuthenticatorAvailable(ctx context.Context) bool {
	if p.authenticator == nil {
		return false
	}

	available, err := p.authenticator.IsUserVerifyingPlatformAuthenticatorAvailable(ctx)
	if err != nil {
		p.logger.Warn("platform authenticator availability check failed", "error", err)
		return false
	}
	return available
}
