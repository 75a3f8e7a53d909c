// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → enforces ownership, fills server-owned fields
//	Repository (Data layer)  → reads/writes the database
//
// Services accept plain Go values (a Requester, an id, a typed update) and
// return domain errors from the apperror package. They know nothing about
// HTTP status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/tasklists/internal/apperror"
	"github.com/sakif/tasklists/internal/model"
	"github.com/sakif/tasklists/internal/repository"
)

// CreateListInput is what a client may choose when creating a list.
// Everything else (id, created_at, tasks, by) is decided by the server.
type CreateListInput struct {
	Title string `json:"title"`
}

// ListUpdate is a partial update of a list. A nil field means "leave as is".
//
// Each field declares how it is applied:
//
//	Title → merge:   replaces the title when present
//	Tasks → replace: the whole task array is swapped for the new one; old
//	                 tasks are discarded, never merged element by element
//
// id, by and created_at have no field here, so a client that sends them in
// an update body is simply ignored: identity and ownership can't change.
type ListUpdate struct {
	Title *string       `json:"title"`
	Tasks *[]model.Task `json:"tasks"`
}

// Apply writes the update onto list according to the per-field policy.
func (u ListUpdate) Apply(list *model.List) {
	if u.Title != nil {
		list.Title = *u.Title
	}
	if u.Tasks != nil {
		replaced := make([]model.Task, len(*u.Tasks))
		copy(replaced, *u.Tasks)
		list.Tasks = replaced
	}
}

// ListService implements the list operations: index, mine, show, create,
// update and destroy.
//
// Every single-list operation is the same short pipeline:
//
//	fetch → authorize → mutate → return
//
// and stops at the first failing step (not found, not allowed, store error).
type ListService struct {
	repo   repository.ListRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewListService creates a ListService.
// Pass a repository.NotifyingLists to have writes announced as events.
func NewListService(repo repository.ListRepository, logger *slog.Logger) *ListService {
	return &ListService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Index returns every list in the store. Routing restricts it to admins.
func (s *ListService) Index(ctx context.Context) ([]model.List, error) {
	lists, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.Error("failed to list all lists", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	return lists, nil
}

// Mine returns the lists owned by the requester.
//
// A user without lists gets an empty slice, not a not-found error:
// "you have no lists" is a perfectly good answer.
func (s *ListService) Mine(ctx context.Context, requester model.Requester) ([]model.List, error) {
	lists, err := s.repo.FindByOwner(ctx, requester.ID)
	if err != nil {
		s.logger.Error("failed to list lists of user",
			slog.String("userID", requester.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing lists of %s: %w", requester.ID, err)
	}
	if lists == nil {
		lists = []model.List{}
	}
	return lists, nil
}

// Show returns a single list. Routing restricts it to admins, so there is
// no ownership check here.
// Returns apperror.ErrNotFound if the list doesn't exist.
func (s *ListService) Show(ctx context.Context, id string) (*model.List, error) {
	return s.fetch(ctx, id)
}

// Create stores a new list for the requester.
//
// The server owns three fields and always overwrites them:
//   - CreatedAt = now
//   - Tasks     = [] (tasks are added later through Update)
//   - By        = requester.ID
func (s *ListService) Create(ctx context.Context, requester model.Requester, in CreateListInput) (*model.List, error) {
	list := &model.List{
		Title:     in.Title,
		CreatedAt: s.now(),
		Tasks:     []model.Task{},
		By:        requester.ID,
	}

	if err := s.repo.Create(ctx, list); err != nil {
		s.logger.Error("failed to create list",
			slog.String("userID", requester.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating list: %w", err)
	}

	s.logger.Info("list created",
		slog.String("id", list.ID),
		slog.String("by", list.By),
	)

	return list, nil
}

// Update applies a partial update to a list the requester may modify.
//
// Errors:
//   - apperror.ErrNotFound     → no such list (nothing is written)
//   - apperror.ErrUnauthorized → requester is neither owner nor admin (nothing is written)
//   - anything else            → the store failed
//
// Two concurrent updates of the same list both succeed; the last write wins.
func (s *ListService) Update(ctx context.Context, requester model.Requester, id string, update ListUpdate) (*model.List, error) {
	list, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(requester, list); err != nil {
		return nil, err
	}

	update.Apply(list)

	if err := s.repo.Save(ctx, list); err != nil {
		s.logger.Error("failed to save list",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating list: %w", err)
	}

	s.logger.Info("list updated",
		slog.String("id", list.ID),
		slog.String("userID", requester.ID),
	)

	return list, nil
}

// Destroy deletes a list the requester may modify. Deletion is physical;
// a second Destroy of the same id returns apperror.ErrNotFound.
func (s *ListService) Destroy(ctx context.Context, requester model.Requester, id string) error {
	list, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}

	if err := s.authorize(requester, list); err != nil {
		return err
	}

	if err := s.repo.Remove(ctx, list); err != nil {
		// Lost a race with another delete.
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to remove list",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("removing list: %w", err)
	}

	s.logger.Info("list deleted",
		slog.String("id", id),
		slog.String("userID", requester.ID),
	)
	return nil
}

// fetch loads a list, passing ErrNotFound through untouched and wrapping
// everything else as a store failure.
func (s *ListService) fetch(ctx context.Context, id string) (*model.List, error) {
	list, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to fetch list",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("fetching list %s: %w", id, err)
	}
	return list, nil
}

// authorize lets admins and the list's owner through.
// IDs are compared as plain strings.
func (s *ListService) authorize(requester model.Requester, list *model.List) error {
	if requester.IsAdmin() || list.OwnedBy(requester.ID) {
		return nil
	}

	s.logger.Warn("list access denied",
		slog.String("id", list.ID),
		slog.String("userID", requester.ID),
		slog.String("owner", list.By),
	)
	return apperror.Unauthorized("list", list.ID)
}
