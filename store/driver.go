package store

import "context"

// Driver is a single physical conversation backend. The Store tries an
// ordered list of drivers; implementations must return ErrNotFound (possibly
// wrapped) when an operation targets a conversation they do not hold.
type Driver interface {
	// Name identifies the backend in logs ("postgres", "mysql", "localfile").
	Name() string

	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, uid string) error

	// AppendMessages adds msgs to the end of the conversation's sequence and
	// refreshes its updated timestamp.
	AppendMessages(ctx context.Context, uid string, msgs []*Message) error
	ListMessages(ctx context.Context, uid string) ([]*Message, error)

	Close() error
}
