package booking

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// NewTicketNumber returns a random XXXX-XXXX-XXXX upper hex number.
// Uniqueness is enforced by the store; a collision fails the commit and the
// purchase is re-run with fresh numbers.
func NewTicketNumber() (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	s := strings.ToUpper(hex.EncodeToString(b[:]))
	return s[0:4] + "-" + s[4:8] + "-" + s[8:12], nil
}
