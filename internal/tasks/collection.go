package tasks

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("task not found")

// Feed is a live view of one principal's tasks. Every change on the remote
// side produces a fresh full snapshot on Snapshots; deltas are never sent.
// A feed error is terminal: it is reported once on Errs and the feed stops.
type Feed interface {
	Snapshots() <-chan []Task
	Errs() <-chan error
	Close()
}

// Collection is the remote task collection: insert with a server-assigned id
// and timestamp, toggle and delete by id, full-snapshot reads and a live
// watch, all scoped to a principal.
type Collection interface {
	Snapshot(ctx context.Context, principal string) ([]Task, error)
	Insert(ctx context.Context, principal, text string) (Task, error)
	Toggle(ctx context.Context, principal, id string) error
	Delete(ctx context.Context, principal, id string) error
	Watch(principal string) (Feed, error)
}
