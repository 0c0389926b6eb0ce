package codec

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvault/passkey/pkg/webauthn"
)

func TestRoundTrip(t *testing.T) {
	c := New()

	sizes := []int{0, 1, 31, chunkSize - 1, chunkSize, chunkSize + 1, 2*chunkSize + 17, 100_000}
	for _, size := range sizes {
		t.Run(fmt.Sprintf("%d bytes", size), func(t *testing.T) {
			b := make([]byte, size)
			_, err := rand.Read(b)
			require.NoError(t, err)

			text := c.BytesToText(b)
			assert.Equal(t, base64.StdEncoding.EncodeToString(b), text)
			assert.Equal(t, b, c.TextToBytes(text))
		})
	}
}

func TestBytesToTextNilInput(t *testing.T) {
	c := New()
	assert.Equal(t, "", c.BytesToText(nil))
}

func TestTextToBytesInvalidInput(t *testing.T) {
	c := New()
	assert.Equal(t, []byte{}, c.TextToBytes("!!not base64!!"))
}

func TestGenerateChallenge(t *testing.T) {
	c := New()

	first, err := c.GenerateChallenge()
	require.NoError(t, err)
	assert.Len(t, first, 32)

	second, err := c.GenerateChallenge()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestEncodeAttestation(t *testing.T) {
	c := New()

	cred := &webauthn.AttestationCredential{
		ID:    "AQID",
		RawID: []byte{1, 2, 3},
		Type:  webauthn.PublicKeyCredentialTypePublicKey,
		Response: webauthn.AuthenticatorAttestationResponse{
			ClientDataJSON:    []byte(`{"type":"webauthn.create"}`),
			AttestationObject: []byte{0xa3},
		},
	}

	enc := c.EncodeAttestation(cred)
	assert.Equal(t, "AQID", enc.ID)
	assert.Equal(t, base64.StdEncoding.EncodeToString(cred.RawID), enc.RawID)
	assert.Equal(t, base64.StdEncoding.EncodeToString(cred.Response.ClientDataJSON), enc.Response.ClientDataJSON)
	assert.Equal(t, base64.StdEncoding.EncodeToString(cred.Response.AttestationObject), enc.Response.AttestationObject)
}

func TestEncodeAttestationAbsentFieldsStayAbsent(t *testing.T) {
	c := New()

	enc := c.EncodeAttestation(&webauthn.AttestationCredential{
		ID:    "AQID",
		RawID: []byte{1, 2, 3},
		Type:  webauthn.PublicKeyCredentialTypePublicKey,
		Response: webauthn.AuthenticatorAttestationResponse{
			ClientDataJSON: []byte(`{}`),
		},
	})

	b, err := json.Marshal(enc)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "attestationObject")
}

func TestEncodeAssertionAbsentUserHandleStaysAbsent(t *testing.T) {
	c := New()

	cred := &webauthn.AssertionCredential{
		ID:    "AQID",
		RawID: []byte{1, 2, 3},
		Type:  webauthn.PublicKeyCredentialTypePublicKey,
		Response: webauthn.AuthenticatorAssertionResponse{
			ClientDataJSON:    []byte(`{}`),
			AuthenticatorData: []byte{4, 5},
			Signature:         []byte{6},
		},
	}

	b, err := json.Marshal(c.EncodeAssertion(cred))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "userHandle")

	cred.Response.UserHandle = []byte("u1")
	b, err = json.Marshal(c.EncodeAssertion(cred))
	require.NoError(t, err)
	assert.Contains(t, string(b), "userHandle")
}
