// Package account defines the borrowed account reference a completion runs for.
package account

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrNotFound is returned when a Loader has no account with the given id.
var ErrNotFound = errors.New("account not found")

// Account is the caller a completion is billed to.
type Account struct {
	ID   string
	Name string
}

// Loader looks up accounts by id.
type Loader interface {
	Load(ctx context.Context, id string) (*Account, error)
}

// Static is an in-memory Loader.
type Static struct {
	accounts map[string]Account
	// AllowUnknown makes Load return a bare account for any non-empty id.
	AllowUnknown bool
}

// NewStatic indexes accounts by ID.
func NewStatic(accounts ...Account) *Static {
	s := &Static{accounts: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

// Load returns a copy of the account with id.
func (s *Static) Load(ctx context.Context, id string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("account id is required")
	}
	if a, ok := s.accounts[id]; ok {
		return &a, nil
	}
	if s.AllowUnknown {
		return &Account{ID: id}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// IDs returns the known account ids sorted.
func (s *Static) IDs() []string {
	return slices.Sorted(maps.Keys(s.accounts))
}
