// Package notify stores in-app notifications and fans workflow side
// effects out to their channels after commit.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one in-app message for an actor. Rows are write
// once; only the read flag ever changes.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	ActorID   int64     `json:"actor_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
