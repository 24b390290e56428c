package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is the relational record of a workspace. Its graph-store
// counterpart is the namespace with the same name.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *Workspace) Prepare() {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
}
