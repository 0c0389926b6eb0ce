package webauthn

// CreateExtensionInputs holds the client extension inputs supported during
// credential creation.
type CreateExtensionInputs struct {
	CredentialProperties bool `json:"credProps"`
}

// CredentialPropertiesOutput reports properties of the newly created credential.
type CredentialPropertiesOutput struct {
	ResidentKey bool `json:"rk"`
}

// CreateExtensionOutputs holds the client extension outputs produced during
// credential creation.
type CreateExtensionOutputs struct {
	CredentialProperties *CredentialPropertiesOutput `json:"credProps,omitempty"`
}
