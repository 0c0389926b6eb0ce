package webauthn

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
)

var ErrAuthDataTooShort = errors.New("webauthn: authenticator data too short")

type AuthDataFlag byte

const (
	AuthDataFlagUserPresent AuthDataFlag = 1 << iota
	_
	AuthDataFlagUserVerified
	AuthDataFlagBackupEligible
	AuthDataFlagBackedUp
	_
	AuthDataFlagAttestedCredentialDataIncluded
	AuthDataFlagExtensionDataIncluded
)

func (f AuthDataFlag) UserPresent() bool {
	return f&AuthDataFlagUserPresent != 0
}
func (f AuthDataFlag) UserVerified() bool {
	return f&AuthDataFlagUserVerified != 0
}
func (f AuthDataFlag) BackupEligible() bool {
	return f&AuthDataFlagBackupEligible != 0
}
func (f AuthDataFlag) BackedUp() bool {
	return f&AuthDataFlagBackedUp != 0
}
func (f AuthDataFlag) AttestedCredentialDataIncluded() bool {
	return f&AuthDataFlagAttestedCredentialDataIncluded != 0
}
func (f AuthDataFlag) ExtensionDataIncluded() bool {
	return f&AuthDataFlagExtensionDataIncluded != 0
}

type AttestedCredentialData struct {
	AAGUID              uuid.UUID
	CredentialID        []byte
	CredentialPublicKey key.Key
}

// AuthData is the parsed form of the authenticator data structure.
// https://www.w3.org/TR/webauthn-3/#sctn-authenticator-data
type AuthData struct {
	RPIDHash               []byte
	Flags                  AuthDataFlag
	SignCount              uint32
	AttestedCredentialData *AttestedCredentialData
}

// ParseAuthData parses raw authenticator data, including the attested
// credential data block when the AT flag is set. Trailing extension bytes
// are left untouched.
func ParseAuthData(data []byte) (*AuthData, error) {
	if len(data) < 37 {
		return nil, ErrAuthDataTooShort
	}

	d := &AuthData{
		RPIDHash:  data[:32],
		Flags:     AuthDataFlag(data[32]),
		SignCount: binary.BigEndian.Uint32(data[33:37]),
	}
	offset := 37
	if d.Flags.AttestedCredentialDataIncluded() {
		if len(data) < offset+18 {
			return nil, ErrAuthDataTooShort
		}
		credData := &AttestedCredentialData{
			AAGUID: uuid.UUID(data[offset : offset+16]),
		}
		offset += 16

		// Credential ID
		length := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		if len(data) < offset+int(length) {
			return nil, ErrAuthDataTooShort
		}
		credData.CredentialID = data[offset : offset+int(length)]
		offset += int(length)

		// Credential Public Key
		dec := cbor.NewDecoder(bytes.NewReader(data[offset:]))
		if err := dec.Decode(&credData.CredentialPublicKey); err != nil {
			return nil, err
		}

		d.AttestedCredentialData = credData
	}

	return d, nil
}

// AttestationObject is the CBOR structure carried in an attestation response.
// https://www.w3.org/TR/webauthn-3/#sctn-attestation
type AttestationObject struct {
	Format               string         `cbor:"fmt"`
	AuthDataRaw          []byte         `cbor:"authData"`
	AttestationStatement map[string]any `cbor:"attStmt"`
	AuthData             *AuthData      `cbor:"-"`
}

// ParseAttestationObject decodes a CBOR attestation object and parses the
// authenticator data embedded in it.
func ParseAttestationObject(data []byte) (*AttestationObject, error) {
	var obj AttestationObject
	if err := cbor.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	authData, err := ParseAuthData(obj.AuthDataRaw)
	if err != nil {
		return nil, err
	}
	obj.AuthData = authData

	return &obj, nil
}
