package store

import (
	"context"
	"errors"

	"github.com/mqy/minichat/wire"
)

var (
	ErrNotFound  = errors.New("store: message not found")
	ErrForbidden = errors.New("store: not allowed")
)

// IMessageStore keeps the one-to-one chat history of the relay.
type IMessageStore interface {
	// Save inserts a message with a non-empty id.
	Save(ctx context.Context, m *wire.Message) error

	// Get gets a message by id.
	Get(ctx context.Context, id string) (*wire.Message, error)

	// History gets the conversation between uid and peer in insertion order,
	// without messages uid deleted for himself.
	History(ctx context.Context, uid, peer string) ([]wire.Message, error)

	// SetDelivered upgrades a sent message to delivered. Reports whether it changed.
	SetDelivered(ctx context.Context, id string) (bool, error)

	// DeliverPending upgrades every sent message to uid to delivered.
	// Returns the upgraded ids grouped by sender.
	DeliverPending(ctx context.Context, uid string) (map[string][]string, error)

	// MarkSeen marks every unseen message from `from` to reader as seen.
	// Returns the ids that changed.
	MarkSeen(ctx context.Context, reader, from string) ([]string, error)

	// Delete deletes a message for uid only (mode `me`), or for both parties
	// (mode `everyone`, sender only). Returns the message as it was.
	Delete(ctx context.Context, id, uid, mode string) (*wire.Message, error)

	// Clear clears the conversation between uid and peer, for uid only (mode
	// `me`) or for both (mode `everyone`).
	Clear(ctx context.Context, uid, peer, mode string) error

	Close() error
}
