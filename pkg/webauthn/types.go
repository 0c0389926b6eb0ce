package webauthn

import (
	"time"

	"github.com/ldclabs/cose/key"
)

type (
	// PublicKeyCredentialType defines the valid credential types.
	// https://www.w3.org/TR/webauthn-3/#enumdef-publickeycredentialtype
	PublicKeyCredentialType string
	// AuthenticatorTransport defines hints as to how clients might communicate
	// with a particular authenticator in order to obtain an assertion for a specific credential.
	// https://www.w3.org/TR/webauthn-3/#enumdef-authenticatortransport
	AuthenticatorTransport string
	// AuthenticatorAttachment describes an authenticator's attachment modality.
	// https://www.w3.org/TR/webauthn-3/#enumdef-authenticatorattachment
	AuthenticatorAttachment string
	// ResidentKeyRequirement expresses the Relying Party's preference for
	// client-side discoverable credentials.
	// https://www.w3.org/TR/webauthn-3/#enumdef-residentkeyrequirement
	ResidentKeyRequirement string
	// UserVerificationRequirement describes the Relying Party's user verification policy.
	// https://www.w3.org/TR/webauthn-3/#enumdef-userverificationrequirement
	UserVerificationRequirement string
	// AttestationConveyancePreference describes how much attestation data the
	// Relying Party wants conveyed at creation time.
	// https://www.w3.org/TR/webauthn-3/#enumdef-attestationconveyancepreference
	AttestationConveyancePreference string
)

const (
	PublicKeyCredentialTypePublicKey PublicKeyCredentialType = "public-key"
)

const (
	AuthenticatorTransportUSB      AuthenticatorTransport = "usb"
	AuthenticatorTransportNFC      AuthenticatorTransport = "nfc"
	AuthenticatorTransportBLE      AuthenticatorTransport = "ble"
	AuthenticatorTransportHybrid   AuthenticatorTransport = "hybrid"
	AuthenticatorTransportInternal AuthenticatorTransport = "internal"
)

const (
	AuthenticatorAttachmentPlatform      AuthenticatorAttachment = "platform"
	AuthenticatorAttachmentCrossPlatform AuthenticatorAttachment = "cross-platform"
)

const (
	ResidentKeyRequired    ResidentKeyRequirement = "required"
	ResidentKeyPreferred   ResidentKeyRequirement = "preferred"
	ResidentKeyDiscouraged ResidentKeyRequirement = "discouraged"
)

const (
	UserVerificationRequired    UserVerificationRequirement = "required"
	UserVerificationPreferred   UserVerificationRequirement = "preferred"
	UserVerificationDiscouraged UserVerificationRequirement = "discouraged"
)

const (
	AttestationNone     AttestationConveyancePreference = "none"
	AttestationIndirect AttestationConveyancePreference = "indirect"
	AttestationDirect   AttestationConveyancePreference = "direct"
)

// PublicKeyCredentialRpEntity is used to supply additional Relying Party attributes when creating a new credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialrpentity
type PublicKeyCredentialRpEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Icon string `json:"icon,omitempty"` // deprecated
}

// PublicKeyCredentialUserEntity is used to supply additional user account attributes when creating a new credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialuserentity
type PublicKeyCredentialUserEntity struct {
	ID          []byte `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// PublicKeyCredentialDescriptor identifies a specific public key credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialdescriptor
type PublicKeyCredentialDescriptor struct {
	Type       PublicKeyCredentialType  `json:"type"`
	ID         []byte                   `json:"id"`
	Transports []AuthenticatorTransport `json:"transports,omitempty"`
}

// PublicKeyCredentialParameters is used to supply additional parameters when creating a new credential.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialparameters
type PublicKeyCredentialParameters struct {
	Type      PublicKeyCredentialType `json:"type"`
	Algorithm key.Alg                 `json:"alg"`
}

// AuthenticatorSelectionCriteria restricts which authenticators may take part
// in a credential creation operation.
// https://www.w3.org/TR/webauthn-3/#dictdef-authenticatorselectioncriteria
type AuthenticatorSelectionCriteria struct {
	AuthenticatorAttachment AuthenticatorAttachment     `json:"authenticatorAttachment,omitempty"`
	ResidentKey             ResidentKeyRequirement      `json:"residentKey,omitempty"`
	UserVerification        UserVerificationRequirement `json:"userVerification,omitempty"`
}

// CredentialCreationOptions carries every parameter of a credential creation
// call against the platform credential API.
// https://www.w3.org/TR/webauthn-3/#dictdef-publickeycredentialcreationoptions
type CredentialCreationOptions struct {
	RP                     PublicKeyCredentialRpEntity
	User                   PublicKeyCredentialUserEntity
	Challenge              []byte
	PubKeyCredParams       []PublicKeyCredentialParameters
	Timeout                time.Duration
	ExcludeCredentials     []PublicKeyCredentialDescriptor
	AuthenticatorSelection AuthenticatorSelectionCriteria
	Attestation            AttestationConveyancePreference
	Extensions             *CreateExtensionInputs
}

// CredentialRequestOptions carries every parameter of a credential assertion
// call against the platform credential API.
// https://www.w3.org/TR/webauthn-3/#dictionary-assertion-options
type CredentialRequestOptions struct {
	RPID             string
	Challenge        []byte
	Timeout          time.Duration
	AllowCredentials []PublicKeyCredentialDescriptor
	UserVerification UserVerificationRequirement
}
