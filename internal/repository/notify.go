package repository

import (
	"context"

	"github.com/sakif/tasklists/internal/event"
	"github.com/sakif/tasklists/internal/model"
)

// NotifyingLists wraps a ListRepository and announces every successful write
// on an event.Notifier:
//
//	Create → save
//	Save   → save
//	Remove → remove
//
// Reads pass straight through. A failed write announces nothing.
//
// DECORATOR PATTERN:
// NotifyingLists implements the same interface it wraps, so the service
// cannot tell whether it is talking to the bare store or the decorated one.
type NotifyingLists struct {
	ListRepository
	events event.Notifier
}

var _ ListRepository = (*NotifyingLists)(nil)

// NewNotifyingLists decorates next with post-write notifications.
func NewNotifyingLists(next ListRepository, events event.Notifier) *NotifyingLists {
	return &NotifyingLists{ListRepository: next, events: events}
}

func (n *NotifyingLists) Create(ctx context.Context, list *model.List) error {
	if err := n.ListRepository.Create(ctx, list); err != nil {
		return err
	}
	n.events.Notify(event.Save, list)
	return nil
}

func (n *NotifyingLists) Save(ctx context.Context, list *model.List) error {
	if err := n.ListRepository.Save(ctx, list); err != nil {
		return err
	}
	n.events.Notify(event.Save, list)
	return nil
}

func (n *NotifyingLists) Remove(ctx context.Context, list *model.List) error {
	if err := n.ListRepository.Remove(ctx, list); err != nil {
		return err
	}
	n.events.Notify(event.Remove, list)
	return nil
}
