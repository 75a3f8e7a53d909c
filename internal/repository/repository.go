// Package repository declares the storage interfaces the services depend on.
//
// The sqlite sub-package implements them; tests implement them with
// in-memory fakes. Nothing outside this package tree knows about SQL.
package repository

import (
	"context"

	"github.com/sakif/tasklists/internal/model"
)

// ListRepository is the List Entity Store.
//
// ERROR CONTRACT:
//   - FindByID returns apperror.ErrNotFound when the list does not exist,
//     including when id is not even a well-formed list id.
//   - Save and Remove return apperror.ErrNotFound when the row is gone.
//   - Anything else is a storage failure.
//
// There are no transactions across lists and no version checks: two
// concurrent Saves of the same list both succeed and the last one wins.
type ListRepository interface {
	FindAll(ctx context.Context) ([]model.List, error)
	FindByOwner(ctx context.Context, ownerID string) ([]model.List, error)
	FindByID(ctx context.Context, id string) (*model.List, error)
	Create(ctx context.Context, list *model.List) error
	Save(ctx context.Context, list *model.List) error
	Remove(ctx context.Context, list *model.List) error
}

// UserRepository stores the accounts that own lists.
type UserRepository interface {
	// Upsert inserts or updates a GitHub-authenticated user, keyed by GitHubID.
	Upsert(ctx context.Context, user *model.User) error
	// CreateLocal inserts a password-authenticated user. Returns
	// apperror.ErrConflict when the login is taken.
	CreateLocal(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	SetRole(ctx context.Context, id, role string) error
}
