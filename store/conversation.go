package store

// Message roles. RoleSystem is reserved for the seed prompt at position 0 of
// every conversation and is never returned to clients.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTitle is assigned to conversations created without an explicit title.
const DefaultTitle = "New Chat"

// FallbackTitle replaces empty or whitespace-only titles on rename.
const FallbackTitle = "Chat"

// Conversation is a single titled, owned chat thread.
type Conversation struct {
	UID       string
	OwnerID   string
	Title     string
	CreatedTs int64
	UpdatedTs int64
}

// Message is a single message within a conversation. Its position in the
// parent's ordered sequence is its only identity; messages are never mutated
// or deleted individually.
type Message struct {
	Role      string
	Content   string
	CreatedTs int64
}

// FindConversation filters for ListConversations / GetConversation.
type FindConversation struct {
	UID     *string
	OwnerID *string
}

// UpdateConversation carries fields accepted by UpdateConversation.
type UpdateConversation struct {
	UID     string
	OwnerID string
	Title   *string
}
