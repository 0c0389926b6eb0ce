package webauthn

// AuthenticatorAttestationResponse is the authenticator's response to a
// credential creation call. ClientDataJSON is always present;
// AttestationObject may be absent if the platform withheld it.
// https://www.w3.org/TR/webauthn-3/#authenticatorattestationresponse
type AuthenticatorAttestationResponse struct {
	ClientDataJSON    []byte
	AttestationObject []byte
}

// AuthenticatorAssertionResponse is the authenticator's response to a
// credential assertion call. UserHandle is only present for discoverable
// credentials.
// https://www.w3.org/TR/webauthn-3/#authenticatorassertionresponse
type AuthenticatorAssertionResponse struct {
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte
}

// AttestationCredential is the native object returned by a credential
// creation call.
type AttestationCredential struct {
	ID                     string
	RawID                  []byte
	Type                   PublicKeyCredentialType
	Response               AuthenticatorAttestationResponse
	ClientExtensionResults *CreateExtensionOutputs
}

// AssertionCredential is the native object returned by a credential
// assertion call.
type AssertionCredential struct {
	ID       string
	RawID    []byte
	Type     PublicKeyCredentialType
	Response AuthenticatorAssertionResponse
}
