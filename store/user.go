package store

import "context"

// User is an authenticated principal. Users live only in the local backend;
// the remote schema holds conversations and messages.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedTs    int64
}

// FindUser filters for GetUser.
type FindUser struct {
	ID       *string
	Username *string
}

// UserDriver is implemented by backends that can hold user accounts.
type UserDriver interface {
	CreateUser(ctx context.Context, create *User) (*User, error)
	GetUser(ctx context.Context, find *FindUser) (*User, error)
}

// CreateUser registers a new user. Returns ErrAlreadyExists if the username
// is taken.
func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.users.CreateUser(ctx, create)
}

// GetUser returns the first user matching the given filter, or nil if none.
func (s *Store) GetUser(ctx context.Context, find *FindUser) (*User, error) {
	return s.users.GetUser(ctx, find)
}
