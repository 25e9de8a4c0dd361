package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jobsturm/crm-local-sub000/internal/repository"
)

var validate = validator.New()

// validateRequest runs the struct tag validation of a request
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return &ValidationError{Fields: ve}
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Backend holds the workspace of the active storage root. Operations hold a
// shared lease for their whole duration; a root change takes the exclusive
// lease so no write lands in the tree that is being copied.
type Backend struct {
	mu  sync.RWMutex
	ws  *repository.Workspace
	now func() time.Time
}

// NewBackend wraps an opened workspace
func NewBackend(ws *repository.Workspace, now func() time.Time) *Backend {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Backend{ws: ws, now: now}
}

// Acquire returns the active workspace and the function releasing it
func (b *Backend) Acquire() (*repository.Workspace, func()) {
	b.mu.RLock()
	return b.ws, b.mu.RUnlock
}

// Workspace returns the active workspace without holding a lease
func (b *Backend) Workspace() *repository.Workspace {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ws
}

// Now returns the current time of the backend clock
func (b *Backend) Now() time.Time {
	return b.now()
}

// exclusive runs fn while no other operation holds the workspace. fn may
// return a replacement workspace.
func (b *Backend) exclusive(fn func(ws *repository.Workspace) (*repository.Workspace, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := fn(b.ws)
	if err != nil {
		return err
	}
	if next != nil {
		b.ws = next
	}
	return nil
}
