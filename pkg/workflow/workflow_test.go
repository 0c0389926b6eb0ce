package workflow

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvault/passkey/pkg/config"
	"github.com/medvault/passkey/pkg/credstore"
	"github.com/medvault/passkey/pkg/options"
	"github.com/medvault/passkey/pkg/softauthn"
	"github.com/medvault/passkey/pkg/storage"
	"github.com/medvault/passkey/pkg/webauthn"
)

var testKeys = config.DefaultStorageKeys()

// stubAuthenticator scripts platform responses and records calls.
type stubAuthenticator struct {
	available  bool
	makeResult *webauthn.AttestationCredential
	makeErr    error
	getResult  *webauthn.AssertionCredential
	getErr     error
	makeCalls  int
	getCalls   int
}

func (s *stubAuthenticator) IsUserVerifyingPlatformAuthenticatorAvailable(_ context.Context) (bool, error) {
	return s.available, nil
}

func (s *stubAuthenticator) MakeCredential(_ context.Context, _ *webauthn.CredentialCreationOptions) (*webauthn.AttestationCredential, error) {
	s.makeCalls++
	return s.makeResult, s.makeErr
}

func (s *stubAuthenticator) GetAssertion(_ context.Context, _ *webauthn.CredentialRequestOptions) (*webauthn.AssertionCredential, error) {
	s.getCalls++
	return s.getResult, s.getErr
}

func attestationFor(rawID []byte) *webauthn.AttestationCredential {
	return &webauthn.AttestationCredential{
		ID:    base64.RawURLEncoding.EncodeToString(rawID),
		RawID: rawID,
		Type:  webauthn.PublicKeyCredentialTypePublicKey,
		Response: webauthn.AuthenticatorAttestationResponse{
			ClientDataJSON: []byte(`{"type":"webauthn.create"}`),
		},
	}
}

func assertionFor(rawID, userHandle []byte) *webauthn.AssertionCredential {
	return &webauthn.AssertionCredential{
		ID:    base64.RawURLEncoding.EncodeToString(rawID),
		RawID: rawID,
		Type:  webauthn.PublicKeyCredentialTypePublicKey,
		Response: webauthn.AuthenticatorAssertionResponse{
			ClientDataJSON:    []byte(`{"type":"webauthn.get"}`),
			AuthenticatorData: []byte{1},
			Signature:         []byte{2},
			UserHandle:        userHandle,
		},
	}
}

func newTestWorkflow(authn webauthn.Authenticator, opts ...options.Option) (*Workflow, storage.Store) {
	kv := storage.NewFileStore(afero.NewMemMapFs(), "store.json")
	opts = append(opts, options.WithRelyingParty(config.NewRelyingPartyConfig("MedVault", "records.medvault.example", "")))
	return New(authn, kv, opts...), kv
}

func workflowError(t *testing.T, err error) *Error {
	t.Helper()

	var werr *Error
	require.ErrorAs(t, err, &werr)
	return werr
}

func TestRegisterStoresCredential(t *testing.T) {
	stub := &stubAuthenticator{available: true, makeResult: attestationFor([]byte{1, 2, 3})}
	wf, kv := newTestWorkflow(stub)

	reg, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), reg.CredentialID)

	store := credstore.New(kv)
	all := store.GetAll()
	require.Len(t, all, 1)
	cred := all[reg.CredentialID]
	assert.Equal(t, "a@b.com", cred.UserEmail)
	assert.Equal(t, "platform", cred.CredentialType)

	enabled, _, err := kv.Get(testKeys.Enabled)
	require.NoError(t, err)
	assert.Equal(t, "true", enabled)
	assert.True(t, wf.IsRegistered())
	assert.True(t, wf.IsEnabled())
}

func TestRegisterIsAdditive(t *testing.T) {
	stub := &stubAuthenticator{available: true, makeResult: attestationFor([]byte{1, 2, 3})}
	wf, kv := newTestWorkflow(stub)

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)

	stub.makeResult = attestationFor([]byte{4, 5, 6})
	_, err = wf.Register(context.Background(), "u2", "c@d.com")
	require.NoError(t, err)

	all := credstore.New(kv).GetAll()
	assert.Len(t, all, 2)
}

func TestRegisterUnavailable(t *testing.T) {
	stub := &stubAuthenticator{available: false}
	wf, kv := newTestWorkflow(stub)

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	assert.Equal(t, KindBiometricUnavailable, workflowError(t, err).Kind)
	assert.Zero(t, stub.makeCalls)

	// No storage mutation on a gated failure.
	for _, key := range []string{testKeys.Credentials, testKeys.UserEmail, testKeys.LastUsedID, testKeys.Enabled} {
		_, ok, kerr := kv.Get(key)
		require.NoError(t, kerr)
		assert.False(t, ok, key)
	}
}

func TestRegisterUnsupported(t *testing.T) {
	wf, _ := newTestWorkflow(nil)

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	assert.Equal(t, KindUnsupported, workflowError(t, err).Kind)
}

func TestRegisterRepairsStoreFirst(t *testing.T) {
	stub := &stubAuthenticator{available: true, makeResult: attestationFor([]byte{1, 2, 3})}
	wf, kv := newTestWorkflow(stub)

	// Leftover of a previously failed attempt.
	require.NoError(t, kv.Set(testKeys.LastUsedID, "stale"))

	reg, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)

	all := credstore.New(kv).GetAll()
	require.Len(t, all, 1)
	_, ok := all[reg.CredentialID]
	assert.True(t, ok)
}

func TestRegisterClassifiesPlatformErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"user cancelled", webauthn.NewPlatformError(webauthn.ErrNameNotAllowed, "the user cancelled"), KindUserCancelled},
		{"timeout wording", webauthn.NewPlatformError(webauthn.ErrNameNotAllowed, "the operation timed out"), KindTimeout},
		{"already registered", webauthn.NewPlatformError(webauthn.ErrNameInvalidState, ""), KindAlreadyRegistered},
		{"unsupported configuration", webauthn.NewPlatformError(webauthn.ErrNameNotSupported, ""), KindNotSupportedConfiguration},
		{"security context", webauthn.NewPlatformError(webauthn.ErrNameSecurity, ""), KindSecurityContextError},
		{"aborted", webauthn.NewPlatformError(webauthn.ErrNameAbort, ""), KindAborted},
		{"unclassified", errors.New("boom"), KindAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuthenticator{available: true, makeErr: tt.err}
			wf, _ := newTestWorkflow(stub)

			_, err := wf.Register(context.Background(), "u1", "a@b.com")
			assert.Equal(t, tt.want, workflowError(t, err).Kind)
		})
	}
}

// silentlyDroppingStore accepts writes but never returns them, simulating a
// persistence layer that lies about success.
type silentlyDroppingStore struct{}

func (silentlyDroppingStore) Get(string) (string, bool, error) { return "", false, nil }
func (silentlyDroppingStore) Set(string, string) error         { return nil }
func (silentlyDroppingStore) Delete(string) error              { return nil }

func TestRegisterVerificationFailure(t *testing.T) {
	stub := &stubAuthenticator{available: true, makeResult: attestationFor([]byte{1, 2, 3})}
	wf := New(stub, silentlyDroppingStore{})

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	assert.Equal(t, KindStorageVerificationFailed, workflowError(t, err).Kind)
	assert.False(t, wf.IsRegistered())
}

// failingStore refuses every write.
type failingStore struct{}

func (failingStore) Get(string) (string, bool, error) { return "", false, nil }
func (failingStore) Set(string, string) error         { return errors.New("disk full") }
func (failingStore) Delete(string) error              { return nil }

func TestRegisterStorageWriteFailure(t *testing.T) {
	stub := &stubAuthenticator{available: true, makeResult: attestationFor([]byte{1, 2, 3})}
	wf := New(stub, failingStore{})

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	assert.Equal(t, KindStorageWriteFailed, workflowError(t, err).Kind)
}

func TestAuthenticateWithoutCredentials(t *testing.T) {
	stub := &stubAuthenticator{available: true}
	wf, _ := newTestWorkflow(stub)

	_, err := wf.Authenticate(context.Background())
	werr := workflowError(t, err)
	assert.Equal(t, KindNotRegistered, werr.Kind)
	assert.True(t, werr.NeedsRegistration)
	assert.Zero(t, stub.getCalls)
}

func TestAuthenticateEnabledFlagIsAuthoritative(t *testing.T) {
	stub := &stubAuthenticator{available: true}
	wf, kv := newTestWorkflow(stub)

	store := credstore.New(kv)
	require.NoError(t, store.Put(credstore.StoredCredential{ID: "AQID", UserEmail: "a@b.com"}))
	require.NoError(t, kv.Delete(testKeys.Enabled))

	_, err := wf.Authenticate(context.Background())
	werr := workflowError(t, err)
	assert.Equal(t, KindNotRegistered, werr.Kind)
	assert.True(t, werr.NeedsRegistration)
	assert.Zero(t, stub.getCalls)
}

func TestAuthenticateSkipsSyntheticCredentials(t *testing.T) {
	stub := &stubAuthenticator{available: true}
	wf, kv := newTestWorkflow(stub)

	store := credstore.New(kv)
	require.NoError(t, store.Put(credstore.StoredCredential{ID: config.TestCredentialPrefix + "1", UserEmail: "a@b.com"}))

	_, err := wf.Authenticate(context.Background())
	assert.Equal(t, KindNotRegistered, workflowError(t, err).Kind)
	assert.Zero(t, stub.getCalls)
}

func TestAuthenticateUnavailable(t *testing.T) {
	stub := &stubAuthenticator{available: false}
	wf, kv := newTestWorkflow(stub)

	store := credstore.New(kv)
	require.NoError(t, store.Put(credstore.StoredCredential{ID: "AQID", UserEmail: "a@b.com"}))

	_, err := wf.Authenticate(context.Background())
	assert.Equal(t, KindBiometricUnavailable, workflowError(t, err).Kind)
	assert.Zero(t, stub.getCalls)
	assert.True(t, store.HasAny())
}

func TestAuthenticateSuccess(t *testing.T) {
	rawID := []byte{1, 2, 3}
	stub := &stubAuthenticator{
		available:  true,
		makeResult: attestationFor(rawID),
		getResult:  assertionFor(rawID, []byte("u1")),
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	wf, kv := newTestWorkflow(stub, options.WithClock(func() time.Time { return now }))

	reg, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)
	registeredAt := now

	now = now.Add(time.Hour)
	auth, err := wf.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reg.CredentialID, auth.CredentialID)
	// User handle "u1" is not an email; the auxiliary entry wins.
	assert.Equal(t, "a@b.com", auth.UserEmail)
	assert.NotEmpty(t, auth.Assertion.Response.Signature)

	cred, ok := credstore.New(kv, options.WithClock(func() time.Time { return now })).Get(auth.CredentialID)
	require.True(t, ok)
	assert.Equal(t, registeredAt, cred.CreatedAt)
	assert.Equal(t, registeredAt.Add(time.Hour), cred.LastUsed)
}

func TestAuthenticateUserHandleEmailWins(t *testing.T) {
	rawID := []byte{1, 2, 3}
	stub := &stubAuthenticator{
		available:  true,
		makeResult: attestationFor(rawID),
		getResult:  assertionFor(rawID, []byte("handle@b.com")),
	}
	wf, _ := newTestWorkflow(stub)

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)

	auth, err := wf.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "handle@b.com", auth.UserEmail)
}

func TestOverlappingCallsAreRejected(t *testing.T) {
	stub := &stubAuthenticator{available: true}
	wf, _ := newTestWorkflow(stub)

	wf.busy.Store(true)

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	assert.Equal(t, KindBusy, workflowError(t, err).Kind)

	_, err = wf.Authenticate(context.Background())
	assert.Equal(t, KindBusy, workflowError(t, err).Kind)
}

func TestDisable(t *testing.T) {
	stub := &stubAuthenticator{available: true, makeResult: attestationFor([]byte{1, 2, 3})}
	wf, kv := newTestWorkflow(stub)

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)
	require.True(t, wf.IsRegistered())

	require.NoError(t, wf.Disable())
	assert.False(t, wf.IsRegistered())
	assert.False(t, wf.IsEnabled())
	assert.False(t, credstore.New(kv).HasAny())
}

func TestListRegisteredDevices(t *testing.T) {
	stub := &stubAuthenticator{available: true, makeResult: attestationFor([]byte{1, 2, 3})}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	wf, _ := newTestWorkflow(stub, options.WithClock(func() time.Time { return now }))

	_, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	stub.makeResult = attestationFor([]byte{4, 5, 6})
	second, err := wf.Register(context.Background(), "u2", "c@d.com")
	require.NoError(t, err)

	devices := wf.ListRegisteredDevices()
	require.Len(t, devices, 2)
	assert.Equal(t, second.CredentialID, devices[0].ID)
	assert.NotEmpty(t, devices[0].DeviceName)
}

func TestEndToEndWithSoftwareAuthenticator(t *testing.T) {
	wf, _ := newTestWorkflow(softauthn.New())
	wf.Refresh(context.Background())
	require.True(t, wf.IsAvailable())

	reg, err := wf.Register(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)

	auth, err := wf.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reg.CredentialID, auth.CredentialID)
	assert.Equal(t, "a@b.com", auth.UserEmail)
	assert.NotEmpty(t, auth.Assertion.Response.AuthenticatorData)
}
