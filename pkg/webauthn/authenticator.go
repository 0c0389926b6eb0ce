package webauthn

import "context"

// Authenticator is the platform credential API this module consumes but does
// not implement: a credential creation call, a credential assertion call, and
// a capability query. Browser bridges, OS keystores, and the in-process
// software authenticator all satisfy it. Failed calls return *PlatformError.
type Authenticator interface {
	// MakeCredential creates a new credential. It may block until the user
	// completes or dismisses the platform's verification ceremony, bounded by
	// opts.Timeout and ctx.
	MakeCredential(ctx context.Context, opts *CredentialCreationOptions) (*AttestationCredential, error)

	// GetAssertion produces an assertion over one of the allowed credentials.
	// Blocking behavior matches MakeCredential.
	GetAssertion(ctx context.Context, opts *CredentialRequestOptions) (*AssertionCredential, error)

	// IsUserVerifyingPlatformAuthenticatorAvailable reports whether a
	// user-verifying platform authenticator (e.g. a biometric sensor) is
	// usable in the current context. The platform's own check may be slow.
	IsUserVerifyingPlatformAuthenticatorAvailable(ctx context.Context) (bool, error)
}
