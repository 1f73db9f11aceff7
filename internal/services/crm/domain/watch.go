package domain

import (
	"context"
	"fmt"
)

// Subscriptions exposes refresh signals for cached query keys. A signal
// fires every time the key's fetch settles, whether triggered by a mutation
// or a direct refresh.
type Subscriptions interface {
	SubscribeContactList(ownerID, tag string) (<-chan struct{}, func())
	SubscribeContact(ownerID, contactID string) (<-chan struct{}, func())
	SubscribeNotes(ownerID, contactID string) (<-chan struct{}, func())
}

// WatchResource forwards cache refresh signals for the resource at uri to
// the notifier until ctx ends. It blocks; run it on its own goroutine.
func WatchResource(ctx context.Context, subs Subscriptions, uri string, notify ResourceUpdateNotifier) error {
	if subs == nil {
		return fmt.Errorf("subscriptions are not configured")
	}
	signals, cancel, err := subscribeURI(subs, uri)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-signals:
			if !ok {
				return nil
			}
			NotifyResourceUpdates(ctx, notify, uri)
		}
	}
}

// subscribeURI maps a contacts:// URI onto the cache key subscription that
// backs it.
func subscribeURI(subs Subscriptions, uri string) (<-chan struct{}, func(), error) {
	if ownerID, contactID, err := parseNoteListURI(uri); err == nil {
		signals, cancel := subs.SubscribeNotes(ownerID, contactID)
		return signals, cancel, nil
	}
	if ownerID, contactID, err := parseContactIDFromURI(uri); err == nil {
		signals, cancel := subs.SubscribeContact(ownerID, contactID)
		return signals, cancel, nil
	}
	ownerID, err := parseOwnerIDFromURI(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("URI %q does not name a watchable resource", uri)
	}
	signals, cancel := subs.SubscribeContactList(ownerID, "")
	return signals, cancel, nil
}
