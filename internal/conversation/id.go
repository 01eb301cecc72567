// ABOUTME: Deterministic two-party conversation identifiers
// ABOUTME: CanonicalID and ParseID are pure and shared by server and client code

package conversation

import (
	"strings"

	"github.com/2389/reelchat/internal/chaterr"
)

// Delimiter joins the two sorted participant IDs of a conversation ID.
const Delimiter = "_"

// CanonicalID returns the conversation ID for the unordered pair (a, b).
// CanonicalID(a, b) == CanonicalID(b, a) for every valid pair.
func CanonicalID(a, b string) (string, error) {
	if err := validateParticipant(a); err != nil {
		return "", err
	}
	if err := validateParticipant(b); err != nil {
		return "", err
	}
	if a == b {
		return "", chaterr.Validation("conversation requires two distinct users")
	}

	if b < a {
		a, b = b, a
	}
	return a + Delimiter + b, nil
}

// ParseID splits a conversation ID into its participants, lowest first.
func ParseID(id string) (a, b string, err error) {
	a, b, ok := strings.Cut(id, Delimiter)
	if !ok || a == "" || b == "" || strings.Contains(b, Delimiter) || a >= b {
		return "", "", chaterr.Validation("malformed conversation id %q", id)
	}
	return a, b, nil
}

// IsParticipant reports whether userID is one of the two users encoded in id.
func IsParticipant(id, userID string) bool {
	a, b, err := ParseID(id)
	if err != nil {
		return false
	}
	return userID == a || userID == b
}

// Peer returns the participant of id that is not userID.
func Peer(id, userID string) (string, error) {
	a, b, err := ParseID(id)
	if err != nil {
		return "", err
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	default:
		return "", chaterr.NotFound("conversation", id)
	}
}

func validateParticipant(id string) error {
	if strings.TrimSpace(id) == "" {
		return chaterr.Validation("user id is empty")
	}
	if strings.Contains(id, Delimiter) {
		return chaterr.Validation("user id %q contains %q", id, Delimiter)
	}
	return nil
}
