package oauth1

import (
	"strconv"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
)

// Signer supplies the per-request randomness, clock and MAC used to sign
// requests. Tests substitute a fixed implementation to get stable vectors.
type Signer interface {
	Nonce() string
	Timestamp() string
	Sign(baseString, consumerSecret, tokenSecret string) string
}

// HMACSigner signs with HMAC-SHA1 and draws nonces from random UUIDs
type HMACSigner struct {
	clock clockwork.Clock
}

// NewHMACSigner returns a signer reading time from clock, or the real
// clock when nil.
func NewHMACSigner(clock clockwork.Clock) *HMACSigner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HMACSigner{clock: clock}
}

// Nonce returns 32 lowercase hex characters
func (s *HMACSigner) Nonce() string {
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.NewV5(uuid.NamespaceOID, strconv.FormatInt(s.clock.Now().UnixNano(), 10))
	}
	var buf [32]byte
	const hex = "0123456789abcdef"
	for i, b := range id.Bytes() {
		buf[i*2] = hex[b>>4]
		buf[i*2+1] = hex[b&0x0F]
	}
	return string(buf[:])
}

// Timestamp returns unix seconds as a decimal string
func (s *HMACSigner) Timestamp() string {
	return strconv.FormatInt(s.clock.Now().Unix(), 10)
}

func (s *HMACSigner) Sign(baseString, consumerSecret, tokenSecret string) string {
	return Sign(baseString, consumerSecret, tokenSecret)
}
