package tasks

import (
	"context"
	"strings"
	"sync"

	"taskpilot-backend/internal/retry"
)

// MutationError marks a create/toggle/delete that exhausted its retry budget.
// Err is the final attempt's error, unchanged.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string { return "task " + e.Op + " failed: " + e.Err.Error() }
func (e *MutationError) Unwrap() error { return e.Err }

// Store is the single source of truth for one principal's tasks and the only
// path that mutates them. It never splices a mutation into its own view;
// every successful write comes back through the live feed as a new snapshot.
type Store struct {
	coll Collection
	exec *retry.Executor

	mu        sync.Mutex
	principal string
	sub       *Subscription

	// subMu serializes whole Subscribe calls so two feeds are never live at
	// once while one watch is still being opened.
	subMu sync.Mutex
}

func NewStore(coll Collection, exec *retry.Executor) *Store {
	return &Store{coll: coll, exec: exec}
}

// Bind scopes subsequent mutations to principal without opening a feed.
func (s *Store) Bind(principal string) {
	s.mu.Lock()
	s.principal = principal
	s.mu.Unlock()
}

func (s *Store) Principal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// Subscribe binds principal and opens its live feed. At most one feed is
// active per store: a prior subscription is torn down first. Snapshots are
// delivered already ordered for presentation.
func (s *Store) Subscribe(principal string) (*Subscription, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	prev := s.sub
	s.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}

	feed, err := s.coll.Watch(principal)
	if err != nil {
		return nil, err
	}

	sub := newSubscription(feed)

	s.mu.Lock()
	s.principal = principal
	s.sub = sub
	s.mu.Unlock()

	return sub, nil
}

// Create inserts a new incomplete task with a server-assigned timestamp.
// Blank text and an unbound principal are both silent no-ops.
func (s *Store) Create(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	principal := s.Principal()
	if text == "" || principal == "" {
		return nil
	}

	err := s.exec.Do(ctx, func(ctx context.Context) error {
		_, err := s.coll.Insert(ctx, principal, text)
		return err
	})
	if err != nil {
		return &MutationError{Op: "create", Err: err}
	}
	return nil
}

// ToggleCompletion flips completed on the identified task.
func (s *Store) ToggleCompletion(ctx context.Context, id string) error {
	principal := s.Principal()
	if principal == "" {
		return nil
	}

	err := s.exec.Do(ctx, func(ctx context.Context) error {
		return s.coll.Toggle(ctx, principal, id)
	})
	if err != nil {
		return &MutationError{Op: "toggle", Err: err}
	}
	return nil
}

// Delete removes the identified task.
func (s *Store) Delete(ctx context.Context, id string) error {
	principal := s.Principal()
	if principal == "" {
		return nil
	}

	err := s.exec.Do(ctx, func(ctx context.Context) error {
		return s.coll.Delete(ctx, principal, id)
	})
	if err != nil {
		return &MutationError{Op: "delete", Err: err}
	}
	return nil
}

// Snapshot reads the current ordered task set directly, for callers that
// want one view without holding a subscription open.
func (s *Store) Snapshot(ctx context.Context) ([]Task, error) {
	principal := s.Principal()
	if principal == "" {
		return nil, nil
	}
	snap, err := s.coll.Snapshot(ctx, principal)
	if err != nil {
		return nil, err
	}
	return Order(snap), nil
}

// Subscription pipes ordered snapshots from a feed until Unsubscribe, which
// is safe to call more than once.
type Subscription struct {
	feed Feed
	out  chan []Task
	errs chan error
	done chan struct{}
	once sync.Once
}

func newSubscription(feed Feed) *Subscription {
	sub := &Subscription{
		feed: feed,
		out:  make(chan []Task, 1),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	go sub.run()
	return sub
}

func (sub *Subscription) run() {
	defer close(sub.out)
	for {
		select {
		case <-sub.done:
			return
		case snap, ok := <-sub.feed.Snapshots():
			if !ok {
				return
			}
			// The consumer may already be gone; done unblocks the send so
			// the relay never outlives Unsubscribe.
			select {
			case sub.out <- Order(snap):
			case <-sub.done:
				return
			}
		case err := <-sub.feed.Errs():
			select {
			case sub.errs <- err:
			default:
			}
			return
		}
	}
}

// Snapshots delivers the ordered task set after every remote change.
func (sub *Subscription) Snapshots() <-chan []Task { return sub.out }

// Errs reports a terminal feed error; the subscription does not restart.
func (sub *Subscription) Errs() <-chan error { return sub.errs }

func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.done)
		sub.feed.Close()
	})
}
