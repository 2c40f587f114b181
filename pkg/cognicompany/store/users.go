package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// User is a chat platform user as seen by the relay.
type User struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Nickname      string `json:"nickname,omitempty"`
	PreferredName string `json:"preferred_name,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// Name resolves the name to address the user by: preferred name, then
// nickname, then display name.
func (u User) Name() string {
	switch {
	case u.PreferredName != "":
		return u.PreferredName
	case u.Nickname != "":
		return u.Nickname
	default:
		return u.DisplayName
	}
}

// UserStore persists User records keyed by id.
type UserStore struct {
	bucket *Bucket
}

// NewUserStore returns the user store backed by db.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{bucket: db.Bucket("users")}
}

// Get returns the user with id or ErrNotFound.
func (s *UserStore) Get(ctx context.Context, id string) (User, error) {
	var u User
	raw, err := s.bucket.Get(ctx, id)
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return u, fmt.Errorf("decoding user %s: %w", id, err)
	}
	return u, nil
}

// Upsert stores u. A preferred name already on record survives updates
// that carry none, since the platform never reports it.
func (s *UserStore) Upsert(ctx context.Context, u User) error {
	if u.ID == "" {
		return errors.New("user without id")
	}

	if u.PreferredName == "" {
		existing, err := s.Get(ctx, u.ID)
		switch {
		case err == nil:
			u.PreferredName = existing.PreferredName
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}

	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding user %s: %w", u.ID, err)
	}
	return s.bucket.Put(ctx, u.ID, raw)
}
