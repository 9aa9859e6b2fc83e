// package models defines the data model for crate's run history
package models

import "time"

// Model is a persisted record with a uuid and bookkeeping timestamps set by its repository.
type Model interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Repository is the sqlite-backed CRUD surface for one model type.
//
// Create assigns the id, sequence and timestamps. List criteria keys are repository specific;
// unknown keys are ignored.
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Update(model T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}
