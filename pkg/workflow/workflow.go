// Package workflow orchestrates platform credential registration and
// authentication against the local credential store: challenge generation,
// the platform ceremony, response encoding and persistence bookkeeping.
package workflow

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/medvault/passkey/pkg/codec"
	"github.com/medvault/passkey/pkg/config"
	"github.com/medvault/passkey/pkg/credstore"
	"github.com/medvault/passkey/pkg/options"
	"github.com/medvault/passkey/pkg/prober"
	"github.com/medvault/passkey/pkg/storage"
	"github.com/medvault/passkey/pkg/webauthn"
)

// Registration is the outcome of a successful Register call.
type Registration struct {
	CredentialID string
	Credential   codec.EncodedAttestation
}

// Authentication is the outcome of a successful Authenticate call.
type Authentication struct {
	CredentialID string
	UserEmail    string
	Assertion    codec.EncodedAssertion
}

// DeviceInfo is the projection of a stored credential handed to UI collaborators.
type DeviceInfo struct {
	ID         string
	DeviceName string
	CreatedAt  time.Time
	LastUsed   time.Time
}

// Workflow is the outward-facing contract of the biometric subsystem.
// Operations are one-shot: no retries, no timeout extension. Overlapping
// calls are rejected with KindBusy; everything else assumes the
// single-session, event-loop style usage the store relies on.
type Workflow struct {
	authenticator webauthn.Authenticator
	codec         *codec.Codec
	store         *credstore.Store
	prober        *prober.Prober
	rp            config.RelyingPartyConfig
	authOpts      config.AuthenticatorOptions
	logger        *slog.Logger

	busy       atomic.Bool
	available  mo.Option[bool]
	registered bool
}

// New assembles a workflow over the given platform authenticator and
// key/value backend. Call Refresh afterwards to populate the cached
// capability booleans.
func New(authenticator webauthn.Authenticator, kv storage.Store, opts ...options.Option) *Workflow {
	oo := options.NewOptions(opts...)

	rp := config.NewRelyingPartyConfig("Passkey", "localhost", "")
	if oo.RelyingParty != nil {
		rp = *oo.RelyingParty
	}

	store := credstore.New(kv, opts...)

	return &Workflow{
		authenticator: authenticator,
		codec:         codec.New(opts...),
		store:         store,
		prober:        prober.New(authenticator, opts...),
		rp:            rp,
		authOpts:      oo.AuthenticatorOptions,
		logger:        oo.Logger,
		registered:    store.HasAny() && store.Enabled(),
	}
}

// Refresh re-runs the capability probe and recomputes the cached booleans.
func (w *Workflow) Refresh(ctx context.Context) {
	w.available = mo.Some(w.prober.IsPlatformAuthenticatorAvailable(ctx))
	w.registered = w.store.HasAny() && w.store.Enabled()
}

// IsSupported reports whether a platform credential API exists at all.
func (w *Workflow) IsSupported() bool {
	return w.prober.IsSupported()
}

// IsAvailable returns the cached availability probe result; false until the
// first probe ran.
func (w *Workflow) IsAvailable() bool {
	return w.available.OrElse(false)
}

// IsRegistered returns the cached "has a usable credential" flag.
func (w *Workflow) IsRegistered() bool {
	return w.registered
}

// IsEnabled reports the persisted enabled flag.
func (w *Workflow) IsEnabled() bool {
	return w.store.Enabled()
}

// Disable wholesale-clears the credential store.
func (w *Workflow) Disable() error {
	if err := w.store.ClearAll(); err != nil {
		return err
	}
	w.registered = false
	return nil
}

// ListRegisteredDevices projects the stored credentials for display,
// newest first.
func (w *Workflow) ListRegisteredDevices() []DeviceInfo {
	devices := lo.MapToSlice(w.store.GetAll(), func(id string, cred credstore.StoredCredential) DeviceInfo {
		return DeviceInfo{
			ID:         id,
			DeviceName: cred.DeviceName,
			CreatedAt:  cred.CreatedAt,
			LastUsed:   cred.LastUsed,
		}
	})
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})
	return devices
}

// Register creates a new platform credential for the given user and persists
// it. The store is repaired before the attempt; the write is verified by
// reading the mapping back, so a reported success always leaves a usable
// credential behind.
func (w *Workflow) Register(ctx context.Context, userID, userEmail string) (*Registration, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return nil, newError(KindBusy, "another operation is in progress")
	}
	defer w.busy.Store(false)

	attemptID := uuid.NewString()
	logger := w.logger.With("attempt", attemptID, "op", "register")
	logger.Info("attempt started", "rpID", w.rp.ID)

	if err := w.gate(ctx); err != nil {
		logger.Warn("attempt failed", "kind", err.Kind)
		return nil, err
	}

	repaired, err := w.store.DetectAndRepair()
	if err != nil {
		return nil, &Error{Kind: KindStorageWriteFailed, Message: "could not repair the credential store", cause: err}
	}
	if repaired {
		logger.Warn("credential store was repaired before registration")
	}

	challenge, err := w.codec.GenerateChallenge()
	if err != nil {
		return nil, &Error{Kind: KindAborted, Message: "could not generate a challenge", cause: err}
	}

	createOpts := &webauthn.CredentialCreationOptions{
		RP: webauthn.PublicKeyCredentialRpEntity{
			ID:   w.rp.ID,
			Name: w.rp.Name,
			Icon: w.rp.Icon,
		},
		User: webauthn.PublicKeyCredentialUserEntity{
			ID:          []byte(userID),
			Name:        userEmail,
			DisplayName: userEmail,
		},
		Challenge: challenge,
		PubKeyCredParams: lo.Map(w.authOpts.Algorithms, func(alg key.Alg, _ int) webauthn.PublicKeyCredentialParameters {
			return webauthn.PublicKeyCredentialParameters{
				Type:      webauthn.PublicKeyCredentialTypePublicKey,
				Algorithm: alg,
			}
		}),
		Timeout: w.authOpts.Timeout,
		AuthenticatorSelection: webauthn.AuthenticatorSelectionCriteria{
			AuthenticatorAttachment: w.authOpts.Attachment,
			ResidentKey:             w.authOpts.ResidentKey,
			UserVerification:        w.authOpts.UserVerification,
		},
		Attestation: w.authOpts.Attestation,
		Extensions:  &webauthn.CreateExtensionInputs{CredentialProperties: true},
	}

	logger.Debug("platform call started")
	cred, err := w.authenticator.MakeCredential(ctx, createOpts)
	logger.Debug("platform call finished", "error", err)
	if err != nil {
		werr := classifyPlatformError(opCreate, err)
		logger.Warn("attempt failed", "kind", werr.Kind)
		return nil, werr
	}

	encoded := w.codec.EncodeAttestation(cred)

	residentKey := w.authOpts.ResidentKey == webauthn.ResidentKeyRequired
	if cred.ClientExtensionResults != nil && cred.ClientExtensionResults.CredentialProperties != nil {
		residentKey = cred.ClientExtensionResults.CredentialProperties.ResidentKey
	}

	stored := credstore.StoredCredential{
		ID:          encoded.RawID,
		UserEmail:   userEmail,
		DeviceName:  w.deriveDeviceName(cred),
		ResidentKey: residentKey,
		Credential:  encoded,
	}
	if err := w.store.Put(stored); err != nil {
		logger.Error("persisting credential failed", "error", err)
		return nil, &Error{Kind: KindStorageWriteFailed, Message: "could not persist the credential", cause: err}
	}

	// Read-back verification: API-level success without a retrievable
	// credential must not count as registered.
	if _, ok := w.store.Get(stored.ID); !ok {
		if cerr := w.store.ClearAll(); cerr != nil {
			logger.Error("cleanup after verification failure failed", "error", cerr)
		}
		logger.Error("credential missing on read-back")
		return nil, newError(KindStorageVerificationFailed, "the credential did not persist")
	}

	w.registered = true
	logger.Info("credential persisted", "credentialID", stored.ID)

	return &Registration{
		CredentialID: stored.ID,
		Credential:   encoded,
	}, nil
}

// Authenticate asserts one of the stored credentials. It never repairs the
// store: an inconsistent state fails with KindNotRegistered and
// NeedsRegistration set, before any platform call.
func (w *Workflow) Authenticate(ctx context.Context) (*Authentication, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return nil, newError(KindBusy, "another operation is in progress")
	}
	defer w.busy.Store(false)

	attemptID := uuid.NewString()
	logger := w.logger.With("attempt", attemptID, "op", "authenticate")
	logger.Info("attempt started", "rpID", w.rp.ID)

	if err := w.gate(ctx); err != nil {
		logger.Warn("attempt failed", "kind", err.Kind)
		return nil, err
	}

	all := w.store.GetAll()
	if len(all) == 0 || !w.store.Enabled() {
		logger.Warn("attempt failed", "kind", KindNotRegistered)
		return nil, notRegisteredError()
	}

	candidates := lo.Reject(lo.Keys(all), func(id string, _ int) bool {
		return credstore.IsSynthetic(id)
	})
	if len(candidates) == 0 {
		logger.Warn("attempt failed", "kind", KindNotRegistered)
		return nil, notRegisteredError()
	}

	challenge, err := w.codec.GenerateChallenge()
	if err != nil {
		return nil, &Error{Kind: KindAborted, Message: "could not generate a challenge", cause: err}
	}

	requestOpts := &webauthn.CredentialRequestOptions{
		RPID:      w.rp.ID,
		Challenge: challenge,
		Timeout:   w.authOpts.Timeout,
		AllowCredentials: lo.Map(candidates, func(id string, _ int) webauthn.PublicKeyCredentialDescriptor {
			return webauthn.PublicKeyCredentialDescriptor{
				Type:       webauthn.PublicKeyCredentialTypePublicKey,
				ID:         w.codec.TextToBytes(id),
				Transports: w.authOpts.Transports,
			}
		}),
		UserVerification: w.authOpts.UserVerification,
	}

	logger.Debug("platform call started", "candidates", len(candidates))
	assertion, err := w.authenticator.GetAssertion(ctx, requestOpts)
	logger.Debug("platform call finished", "error", err)
	if err != nil {
		werr := classifyPlatformError(opGet, err)
		logger.Warn("attempt failed", "kind", werr.Kind)
		return nil, werr
	}

	encoded := w.codec.EncodeAssertion(assertion)
	credID := encoded.RawID

	matched, _ := w.store.Get(credID)
	if err := w.store.TouchLastUsed(credID); err != nil {
		logger.Warn("could not update last-used timestamp", "error", err)
	}

	w.registered = true
	logger.Info("authenticated", "credentialID", credID)

	return &Authentication{
		CredentialID: credID,
		UserEmail:    w.resolveEmail(assertion.Response.UserHandle, matched),
		Assertion:    encoded,
	}, nil
}

// gate enforces the capability preconditions shared by both operations.
func (w *Workflow) gate(ctx context.Context) *Error {
	if !w.prober.IsSupported() {
		return newError(KindUnsupported, "no platform credential API in this context")
	}
	if !w.prober.IsPlatformAuthenticatorAvailable(ctx) {
		w.available = mo.Some(false)
		return newError(KindBiometricUnavailable, "no platform authenticator is available")
	}
	w.available = mo.Some(true)
	return nil
}

func notRegisteredError() *Error {
	return &Error{
		Kind:              KindNotRegistered,
		Message:           "no usable credential is registered",
		NeedsRegistration: true,
	}
}

// resolveEmail picks the user email with one canonical precedence:
// an email recoverable from the assertion's user handle, then the store's
// auxiliary email entry, then the matched credential's own record.
func (w *Workflow) resolveEmail(userHandle []byte, matched credstore.StoredCredential) string {
	if handle := string(userHandle); utf8.ValidString(handle) && strings.Contains(handle, "@") {
		return handle
	}
	if email := w.store.Email(); email != "" {
		return email
	}
	return matched.UserEmail
}

// deriveDeviceName labels the credential for device listings: the host
// platform plus a short authenticator model id when the attestation object
// carries one.
func (w *Workflow) deriveDeviceName(cred *webauthn.AttestationCredential) string {
	name := platformName(runtime.GOOS) + " platform authenticator"

	if len(cred.Response.AttestationObject) == 0 {
		return name
	}
	obj, err := webauthn.ParseAttestationObject(cred.Response.AttestationObject)
	if err != nil || obj.AuthData.AttestedCredentialData == nil {
		return name
	}
	if aaguid := obj.AuthData.AttestedCredentialData.AAGUID; aaguid != uuid.Nil {
		return name + " (" + aaguid.String()[:8] + ")"
	}
	return name
}

func platformName(goos string) string {
	switch goos {
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	case "linux":
		return "Linux"
	default:
		return strings.ToUpper(goos[:1]) + goos[1:]
	}
}
