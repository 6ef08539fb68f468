// Package store persists named action sequences.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/v0xg/steprec/internal/action"
)

// ErrNotFound is returned when no sequence has the requested name
var ErrNotFound = errors.New("sequence not found")

// Error records the operation and key that failed
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Summary describes a stored sequence without its actions
type Summary struct {
	Name      string
	Origin    string
	Actions   int
	UpdatedAt time.Time
}

// Store is a keyed collection of sequences. Save replaces any sequence
// already stored under the same name.
type Store interface {
	Save(ctx context.Context, name string, seq *action.Sequence) error
	Load(ctx context.Context, name string) (*action.Sequence, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "yaml") rooted at path
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(path)
	case "yaml":
		return NewDir(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// checkName keeps names usable as file names and table keys
func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("name %q must not contain path separators", name)
	}
	return nil
}
