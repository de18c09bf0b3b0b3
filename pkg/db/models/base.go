package models

import "github.com/google/uuid"

// ensureID assigns a time-ordered UUIDv7 so (created_at, id) sorts in insert
// order even when timestamps tie.
func ensureID(id *uuid.UUID) {
	if *id != uuid.Nil {
		return
	}
	if v7, err := uuid.NewV7(); err == nil {
		*id = v7
		return
	}
	*id = uuid.New()
}
