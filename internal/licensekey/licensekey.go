// Package licensekey generates license keys of the form PREFIX-XXXX-XXXX-XXXX-XXXX.
//
// Keys are opaque: they carry no embedded attributes and are only ever looked
// up by equality, so a key is valid exactly when a license record holds it.
package licensekey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	DefaultPrefix = "VM"

	groups   = 4
	groupLen = 4
	// each byte renders as two hex digits, so a key carries 64 random bits
	entropyBytes = groups * groupLen / 2
)

type Codec struct {
	prefix string
	rand   io.Reader
}

// New returns a codec that prefixes keys with prefix. An empty prefix uses DefaultPrefix.
func New(prefix string) *Codec {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Codec{prefix: prefix, rand: rand.Reader}
}

// WithRand swaps the entropy source. Used by tests.
func (c *Codec) WithRand(r io.Reader) *Codec {
	return &Codec{prefix: c.prefix, rand: r}
}

// Generate draws fresh random bytes and formats them as a key.
func (c *Codec) Generate() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := io.ReadFull(c.rand, buf); err != nil {
		return "", fmt.Errorf("read key entropy: %w", err)
	}
	return c.format(buf), nil
}

func (c *Codec) format(raw []byte) string {
	digits := strings.ToUpper(hex.EncodeToString(raw))

	var b strings.Builder
	b.Grow(len(c.prefix) + groups*(groupLen+1))
	b.WriteString(c.prefix)
	for i := 0; i < groups; i++ {
		b.WriteByte('-')
		b.WriteString(digits[i*groupLen : (i+1)*groupLen])
	}
	return b.String()
}
