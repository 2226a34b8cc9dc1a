package util

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewTicketTag returns the short human-readable identity printed on the
// ticket, e.g. TK-4F2A9C. Six hex chars keeps it typeable over the phone.
func NewTicketTag() string {
	bytes := make([]byte, 3)
	_, _ = rand.Read(bytes)
	tag := hex.EncodeToString(bytes)
	upper := make([]byte, len(tag))
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	return "TK-" + string(upper)
}
