package repository

import (
	"context"
	"errors"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence collaborator for conversations and
// messages. Every mutation the engines perform goes through it, and
// nothing is broadcast until the corresponding Store call succeeded.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	InsertConversation(ctx context.Context, c *models.Conversation) error
	UpdateConversation(ctx context.Context, c *models.Conversation) error
	// DeleteConversation removes the conversation and cascades to its
	// messages. The one hard-delete path in the system.
	DeleteConversation(ctx context.Context, id string) error

	GetMessage(ctx context.Context, id string) (*models.Message, error)
	InsertMessage(ctx context.Context, m *models.Message) error
	UpdateMessage(ctx context.Context, m *models.Message) error

	UserExists(ctx context.Context, id string) (bool, error)
}
