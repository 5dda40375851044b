package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrRevisionConflict signals a lost optimistic-concurrency race on the
	// reopen transition (another caller bumped revision_number first).
	ErrRevisionConflict = errors.New("revision conflict")
)

// Repositories is the primary-store adapter set.
type Repositories struct {
	NC            *NCRepository
	Effectiveness *EffectivenessRepository
	Task          *TaskRepository
	User          *UserRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		NC:            NewNCRepository(db),
		Effectiveness: NewEffectivenessRepository(db),
		Task:          NewTaskRepository(db),
		User:          NewUserRepository(db),
	}
}
