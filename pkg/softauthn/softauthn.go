// Package softauthn implements an in-process platform authenticator: an
// ES256 software key store satisfying the same contract a browser bridge or
// OS keystore would. It backs the demo binary and the workflow tests; it
// performs no real user verification.
package softauthn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	coseecdsa "github.com/ldclabs/cose/key/ecdsa"

	"github.com/medvault/passkey/pkg/options"
	"github.com/medvault/passkey/pkg/webauthn"
)

var ctap2EncMode cbor.EncMode

func init() {
	ctap2EncMode, _ = cbor.CTAP2EncOptions().EncMode()
}

type residentCredential struct {
	id         []byte
	rpID       string
	user       webauthn.PublicKeyCredentialUserEntity
	privateKey *ecdsa.PrivateKey
	signCount  uint32
}

// Authenticator is a software platform authenticator holding discoverable
// ES256 credentials in memory.
type Authenticator struct {
	mu     sync.Mutex
	logger *slog.Logger
	aaguid uuid.UUID
	creds  []*residentCredential
}

func New(opts ...options.Option) *Authenticator {
	oo := options.NewOptions(opts...)

	return &Authenticator{
		logger: oo.Logger,
		aaguid: uuid.New(),
	}
}

// AAGUID returns the authenticator's model identifier.
func (a *Authenticator) AAGUID() uuid.UUID {
	return a.aaguid
}

func (a *Authenticator) IsUserVerifyingPlatformAuthenticatorAvailable(_ context.Context) (bool, error) {
	return true, nil
}

func (a *Authenticator) MakeCredential(_ context.Context, opts *webauthn.CredentialCreationOptions) (*webauthn.AttestationCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if opts.RP.ID == "" {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameSecurity, "relying party id is empty")
	}

	es256 := false
	for _, param := range opts.PubKeyCredParams {
		if param.Type == webauthn.PublicKeyCredentialTypePublicKey && param.Algorithm == key.Alg(iana.AlgorithmES256) {
			es256 = true
			break
		}
	}
	if !es256 {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameNotSupported, "ES256 not in requested algorithms")
	}

	for _, excluded := range opts.ExcludeCredentials {
		if a.find(opts.RP.ID, excluded.ID) != nil {
			return nil, webauthn.NewPlatformError(webauthn.ErrNameInvalidState, "credential already registered")
		}
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}

	credentialID := make([]byte, 32)
	if _, err := rand.Read(credentialID); err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}

	coseKey, err := coseecdsa.KeyFromPublic(&privateKey.PublicKey)
	if err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}
	if err := coseKey.Set(iana.KeyParameterAlg, iana.AlgorithmES256); err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}
	keyBytes, err := ctap2EncMode.Marshal(coseKey)
	if err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}

	flags := webauthn.AuthDataFlagUserPresent |
		webauthn.AuthDataFlagUserVerified |
		webauthn.AuthDataFlagAttestedCredentialDataIncluded
	authData := a.buildAuthData(opts.RP.ID, flags, 0, credentialID, keyBytes)

	clientDataJSON, err := marshalClientData("webauthn.create", opts.Challenge, opts.RP.ID)
	if err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}

	attObj, err := ctap2EncMode.Marshal(&webauthn.AttestationObject{
		Format:               "none",
		AuthDataRaw:          authData,
		AttestationStatement: map[string]any{},
	})
	if err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}

	a.creds = append(a.creds, &residentCredential{
		id:         credentialID,
		rpID:       opts.RP.ID,
		user:       opts.User,
		privateKey: privateKey,
	})

	cred := &webauthn.AttestationCredential{
		ID:    base64.RawURLEncoding.EncodeToString(credentialID),
		RawID: credentialID,
		Type:  webauthn.PublicKeyCredentialTypePublicKey,
		Response: webauthn.AuthenticatorAttestationResponse{
			ClientDataJSON:    clientDataJSON,
			AttestationObject: attObj,
		},
	}
	if opts.Extensions != nil && opts.Extensions.CredentialProperties {
		cred.ClientExtensionResults = &webauthn.CreateExtensionOutputs{
			CredentialProperties: &webauthn.CredentialPropertiesOutput{
				ResidentKey: opts.AuthenticatorSelection.ResidentKey != webauthn.ResidentKeyDiscouraged,
			},
		}
	}

	a.logger.Debug("software authenticator created credential",
		"rpID", opts.RP.ID, "credentialID", cred.ID)

	return cred, nil
}

func (a *Authenticator) GetAssertion(_ context.Context, opts *webauthn.CredentialRequestOptions) (*webauthn.AssertionCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if opts.RPID == "" {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameSecurity, "relying party id is empty")
	}

	var cred *residentCredential
	if len(opts.AllowCredentials) > 0 {
		for _, desc := range opts.AllowCredentials {
			if c := a.find(opts.RPID, desc.ID); c != nil {
				cred = c
				break
			}
		}
	} else {
		// Discoverable credential flow: pick the newest one for the RP.
		for i := len(a.creds) - 1; i >= 0; i-- {
			if a.creds[i].rpID == opts.RPID {
				cred = a.creds[i]
				break
			}
		}
	}
	if cred == nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameNotAllowed, "no credentials found")
	}

	cred.signCount++
	flags := webauthn.AuthDataFlagUserPresent | webauthn.AuthDataFlagUserVerified
	rpIDHash := sha256.Sum256([]byte(opts.RPID))
	signCount := make([]byte, 4)
	binary.BigEndian.PutUint32(signCount, cred.signCount)
	authData := slices.Concat(rpIDHash[:], []byte{byte(flags)}, signCount)

	clientDataJSON, err := marshalClientData("webauthn.get", opts.Challenge, opts.RPID)
	if err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	digest := sha256.Sum256(slices.Concat(authData, clientDataHash[:]))
	signature, err := ecdsa.SignASN1(rand.Reader, cred.privateKey, digest[:])
	if err != nil {
		return nil, webauthn.NewPlatformError(webauthn.ErrNameUnknown, err.Error())
	}

	return &webauthn.AssertionCredential{
		ID:    base64.RawURLEncoding.EncodeToString(cred.id),
		RawID: cred.id,
		Type:  webauthn.PublicKeyCredentialTypePublicKey,
		Response: webauthn.AuthenticatorAssertionResponse{
			ClientDataJSON:    clientDataJSON,
			AuthenticatorData: authData,
			Signature:         signature,
			UserHandle:        cred.user.ID,
		},
	}, nil
}

func (a *Authenticator) find(rpID string, credentialID []byte) *residentCredential {
	for _, c := range a.creds {
		if c.rpID == rpID && slices.Equal(c.id, credentialID) {
			return c
		}
	}
	return nil
}

func (a *Authenticator) buildAuthData(rpID string, flags webauthn.AuthDataFlag, signCount uint32, credentialID, coseKey []byte) []byte {
	rpIDHash := sha256.Sum256([]byte(rpID))

	count := make([]byte, 4)
	binary.BigEndian.PutUint32(count, signCount)

	credIDLen := make([]byte, 2)
	binary.BigEndian.PutUint16(credIDLen, uint16(len(credentialID)))

	return slices.Concat(
		rpIDHash[:],
		[]byte{byte(flags)},
		count,
		a.aaguid[:],
		credIDLen,
		credentialID,
		coseKey,
	)
}

type collectedClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

func marshalClientData(typ string, challenge []byte, rpID string) ([]byte, error) {
	return json.Marshal(&collectedClientData{
		Type:      typ,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    "https://" + rpID,
	})
}
