package config

import (
	"net"
	"strings"
	"time"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"

	"github.com/medvault/passkey/pkg/webauthn"
)

// ChallengeSize is the default length in bytes of a freshly generated
// challenge. A challenge lives for exactly one platform call and is never
// persisted.
const ChallengeSize = 32

// TestCredentialPrefix marks synthetic credential ids injected by test
// tooling. Entries carrying it are never offered during authentication and
// a store holding nothing else counts as corrupt.
const TestCredentialPrefix = "test-credential-"

// RelyingPartyConfig identifies the Relying Party. ID must equal the current
// origin's domain or a registrable parent of it; the platform enforces this,
// not this module.
type RelyingPartyConfig struct {
	Name string
	ID   string
	Icon string
}

// AuthenticatorOptions are the read-only preferences applied to every
// platform credential call.
type AuthenticatorOptions struct {
	Timeout          time.Duration
	UserVerification webauthn.UserVerificationRequirement
	Attestation      webauthn.AttestationConveyancePreference
	Attachment       webauthn.AuthenticatorAttachment
	ResidentKey      webauthn.ResidentKeyRequirement
	Algorithms       []key.Alg
	Transports       []webauthn.AuthenticatorTransport
}

// DefaultAuthenticatorOptions returns the options used when the caller
// supplies none: a platform-attached, user-verifying authenticator with
// ES256/RS256 preference and no attestation conveyance.
func DefaultAuthenticatorOptions() AuthenticatorOptions {
	return AuthenticatorOptions{
		Timeout:          60 * time.Second,
		UserVerification: webauthn.UserVerificationRequired,
		Attestation:      webauthn.AttestationNone,
		Attachment:       webauthn.AuthenticatorAttachmentPlatform,
		ResidentKey:      webauthn.ResidentKeyPreferred,
		Algorithms: []key.Alg{
			key.Alg(iana.AlgorithmES256),
			key.Alg(-257), // RS256
		},
		Transports: []webauthn.AuthenticatorTransport{
			webauthn.AuthenticatorTransportInternal,
		},
	}
}

// StorageKeys names the four persisted entries of the credential store.
type StorageKeys struct {
	Credentials string
	UserEmail   string
	LastUsedID  string
	Enabled     string
}

func DefaultStorageKeys() StorageKeys {
	return StorageKeys{
		Credentials: "webauthn_credentials",
		UserEmail:   "webauthn_user_email",
		LastUsedID:  "biometricCredentialId",
		Enabled:     "biometricEnabled",
	}
}

// ResolveRelyingPartyID picks the Relying Party id for a page hostname:
// an explicit override wins, loopback hosts collapse to the "localhost"
// literal, anything else is used as-is.
func ResolveRelyingPartyID(hostname, override string) string {
	if override != "" {
		return override
	}
	if isLoopback(hostname) {
		return "localhost"
	}
	return hostname
}

func isLoopback(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(hostname, "[]")); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// NewRelyingPartyConfig builds the Relying Party identity for a given page
// hostname. Pass override to pin the id explicitly.
func NewRelyingPartyConfig(name, hostname, override string) RelyingPartyConfig {
	return RelyingPartyConfig{
		Name: name,
		ID:   ResolveRelyingPartyID(hostname, override),
	}
}
