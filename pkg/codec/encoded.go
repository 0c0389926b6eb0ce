package codec

import "github.com/medvault/passkey/pkg/webauthn"

// EncodedAttestation is the text form of a native credential returned by a
// creation call. Fields absent on the native object stay absent here; they
// are never coerced to empty strings.
type EncodedAttestation struct {
	ID       string                           `json:"id"`
	RawID    string                           `json:"rawId"`
	Type     webauthn.PublicKeyCredentialType `json:"type"`
	Response EncodedAttestationResponse       `json:"response"`
}

type EncodedAttestationResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AttestationObject string `json:"attestationObject,omitempty"`
}

// EncodedAssertion is the text form of a native assertion returned by an
// authentication call.
type EncodedAssertion struct {
	ID       string                           `json:"id"`
	RawID    string                           `json:"rawId"`
	Type     webauthn.PublicKeyCredentialType `json:"type"`
	Response EncodedAssertionResponse         `json:"response"`
}

type EncodedAssertionResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AuthenticatorData string `json:"authenticatorData"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// EncodeAttestation maps every binary field present on the native credential
// through BytesToText.
func (c *Codec) EncodeAttestation(cred *webauthn.AttestationCredential) EncodedAttestation {
	enc := EncodedAttestation{
		ID:    cred.ID,
		RawID: c.BytesToText(cred.RawID),
		Type:  cred.Type,
		Response: EncodedAttestationResponse{
			ClientDataJSON: c.BytesToText(cred.Response.ClientDataJSON),
		},
	}
	if cred.Response.AttestationObject != nil {
		enc.Response.AttestationObject = c.BytesToText(cred.Response.AttestationObject)
	}

	return enc
}

// EncodeAssertion maps every binary field present on the native assertion
// through BytesToText. UserHandle stays absent when the authenticator
// returned none.
func (c *Codec) EncodeAssertion(cred *webauthn.AssertionCredential) EncodedAssertion {
	enc := EncodedAssertion{
		ID:    cred.ID,
		RawID: c.BytesToText(cred.RawID),
		Type:  cred.Type,
		Response: EncodedAssertionResponse{
			ClientDataJSON:    c.BytesToText(cred.Response.ClientDataJSON),
			AuthenticatorData: c.BytesToText(cred.Response.AuthenticatorData),
			Signature:         c.BytesToText(cred.Response.Signature),
		},
	}
	if cred.Response.UserHandle != nil {
		enc.Response.UserHandle = c.BytesToText(cred.Response.UserHandle)
	}

	return enc
}
