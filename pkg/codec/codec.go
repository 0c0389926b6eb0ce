package codec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/medvault/passkey/pkg/options"
)

// chunkSize bounds the size of any single intermediate buffer while
// converting binary data to text. 32 KiB keeps even multi-megabyte
// attestation objects well within engine limits.
const chunkSize = 32 * 1024

// Codec converts the binary data exchanged with the platform credential API
// into the text the persistence layer can hold, and back.
type Codec struct {
	logger        *slog.Logger
	challengeSize int
}

func New(opts ...options.Option) *Codec {
	oo := options.NewOptions(opts...)

	return &Codec{
		logger:        oo.Logger,
		challengeSize: oo.ChallengeSize,
	}
}

// BytesToText encodes bytes as standard base64, processing the input in
// fixed-size chunks. It is total: nil input is logged and yields an empty
// string instead of failing.
func (c *Codec) BytesToText(b []byte) string {
	if b == nil {
		c.logger.Warn("bytesToText called with nil input")
		return ""
	}

	var sb strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for _, chunk := range lo.Chunk(b, chunkSize) {
		// The encoder buffers partial quanta, so chunk boundaries never
		// corrupt the output.
		_, _ = enc.Write(chunk)
	}
	_ = enc.Close()

	return sb.String()
}

// TextToBytes is the inverse of BytesToText. Invalid input is logged and
// yields a zero-length slice instead of failing.
func (c *Codec) TextToBytes(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		c.logger.Warn("textToBytes called with invalid input", "error", err)
		return []byte{}
	}
	return b
}

// GenerateChallenge fills a fresh buffer of the configured length from the
// cryptographically secure random source.
func (c *Codec) GenerateChallenge() ([]byte, error) {
	challenge := make([]byte, c.challengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("codec: cannot generate challenge: %w", err)
	}
	return challenge, nil
}
