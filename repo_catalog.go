package guard

import (
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func NewActionsRepository(db *bun.DB) repository.Repository[*Action] {
	handlers := repository.ModelHandlers[*Action]{
		NewRecord: func() *Action { return &Action{} },
		GetID: func(record *Action) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Action, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewResourcesRepository(db *bun.DB) repository.Repository[*Resource] {
	handlers := repository.ModelHandlers[*Resource]{
		NewRecord: func() *Resource { return &Resource{} },
		GetID: func(record *Resource) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Resource, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewResourcePermissionsRepository(db *bun.DB) repository.Repository[*ResourcePermission] {
	handlers := repository.ModelHandlers[*ResourcePermission]{
		NewRecord: func() *ResourcePermission { return &ResourcePermission{} },
		GetID: func(record *ResourcePermission) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ResourcePermission, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
	}
	return repository.NewRepository(db, handlers)
}
