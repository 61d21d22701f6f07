package chat

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// conversationNamespace scopes conversation ids derived from participant
// pairs.
var conversationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/roach88/tandem/conversations"))

// ConversationID derives the id of the conversation between a and b. The
// pair is unordered: ConversationID(a, b) == ConversationID(b, a). Deriving
// the id makes creation a "create if absent" on a fixed key, so two
// clients creating the same pair at once end up with one document.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return uuid.NewSHA1(conversationNamespace, []byte(strings.Join(pair, "|"))).String()
}

// NewMessageID returns a time-sortable UUIDv7 for a message document.
//
// Panics if UUID generation fails (should never happen in practice).
func NewMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}
