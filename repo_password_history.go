package identity

import (
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NewPasswordHistoryRepository builds the append-only archive of replaced
// password hashes. Rows are only ever inserted.
func NewPasswordHistoryRepository(db *bun.DB) repository.Repository[*PasswordHistory] {
	handlers := repository.ModelHandlers[*PasswordHistory]{
		NewRecord: func() *PasswordHistory {
			return &PasswordHistory{}
		},
		GetID: func(record *PasswordHistory) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordHistory, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	}
	return repository.NewRepository(db, handlers)
}
