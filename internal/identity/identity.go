// Package identity guarantees every transcript message carries a stable
// unique identifier.
//
// Ids are assigned exactly once: messages arriving from any source (a new
// send, a remote history fetch, a guest-tier restore) pass through Assign,
// which is a no-op for messages that already have an id.
package identity

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

// Id format constants
const (
	// MessagePrefix marks transcript message ids.
	MessagePrefix = "msg_"
	// MessageSuffixHexLength is the random hex suffix length of a message id.
	MessageSuffixHexLength = 8
	// GuestSessionPrefix marks guest session identifiers.
	GuestSessionPrefix = "guest_"
)

// Assigner stamps messages with fresh ids. The zero value is ready to use;
// now may be overridden in tests.
type Assigner struct {
	now func() time.Time
}

// NewAssigner creates an Assigner using the wall clock.
func NewAssigner() *Assigner {
	return &Assigner{now: time.Now}
}

// Assign returns the message unchanged if it already has an id, otherwise a
// copy with a freshly generated one. Calling it twice is a no-op.
func (a *Assigner) Assign(m models.Message) models.Message {
	if m.ID != "" {
		return m
	}
	m.ID = a.newMessageID()
	return m
}

// AssignAll applies Assign to every message of a restored transcript,
// in place in the returned slice.
func (a *Assigner) AssignAll(msgs []models.Message) []models.Message {
	for i := range msgs {
		msgs[i] = a.Assign(msgs[i])
	}
	return msgs
}

// newMessageID builds "msg_<unix-nanos base36>_<random hex>". The time
// component keeps ids roughly sortable; the suffix avoids collisions within
// a session's practical lifetime. No cross-device uniqueness is required.
func (a *Assigner) newMessageID() string {
	ts := strconv.FormatInt(a.clock().UnixNano(), 36)
	return MessagePrefix + ts + "_" + randomHex(MessageSuffixHexLength)
}

func (a *Assigner) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// NewGuestSessionID generates a fresh guest session identifier in the
// backend's expected "guest_<unix-seconds>_<4 digits>" format.
func NewGuestSessionID() string {
	return GuestSessionPrefix + strconv.FormatInt(time.Now().Unix(), 10) + "_" + strconv.Itoa(1000+rand.IntN(9000))
}

// randomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; ids are not security sensitive.
func randomHex(length int) string {
	const hexChars = "0123456789abcdef"
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(hexChars[rand.IntN(16)])
	}
	return b.String()
}
