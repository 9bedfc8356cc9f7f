package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskpilot-backend/internal/retry"
)

type fakeFeed struct {
	snaps chan []Task
	errs  chan error

	mu     sync.Mutex
	closed int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		snaps: make(chan []Task, 4),
		errs:  make(chan error, 1),
	}
}

func (f *fakeFeed) Snapshots() <-chan []Task { return f.snaps }
func (f *fakeFeed) Errs() <-chan error       { return f.errs }

func (f *fakeFeed) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func (f *fakeFeed) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCollection struct {
	mu       sync.Mutex
	inserts  []string
	toggles  []string
	deletes  []string
	failLeft int
	opErr    error
	feeds    []*fakeFeed
}

func (c *fakeCollection) fail() error {
	if c.failLeft > 0 {
		c.failLeft--
		return c.opErr
	}
	return nil
}

func (c *fakeCollection) Snapshot(ctx context.Context, principal string) ([]Task, error) {
	return nil, nil
}

func (c *fakeCollection) Insert(ctx context.Context, principal, text string) (Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts = append(c.inserts, text)
	if err := c.fail(); err != nil {
		return Task{}, err
	}
	return Task{ID: "new", Text: text, CreatedAt: time.Now()}, nil
}

func (c *fakeCollection) Toggle(ctx context.Context, principal, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles = append(c.toggles, id)
	return c.fail()
}

func (c *fakeCollection) Delete(ctx context.Context, principal, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, id)
	return c.fail()
}

func (c *fakeCollection) Watch(principal string) (Feed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := newFakeFeed()
	c.feeds = append(c.feeds, f)
	return f, nil
}

func fastExecutor() *retry.Executor {
	e := retry.New()
	e.BaseDelay = time.Millisecond
	return e
}

func boundStore(coll Collection) *Store {
	s := NewStore(coll, fastExecutor())
	s.Bind("user-1")
	return s
}

func TestCreateBlankTextMakesNoRemoteCall(t *testing.T) {
	coll := &fakeCollection{}
	s := boundStore(coll)

	if err := s.Create(context.Background(), ""); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := s.Create(context.Background(), "   "); err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(coll.inserts) != 0 {
		t.Fatalf("inserts = %v, want none", coll.inserts)
	}
}

func TestMutationsWithoutPrincipalAreNoops(t *testing.T) {
	coll := &fakeCollection{}
	s := NewStore(coll, fastExecutor())

	if err := s.Create(context.Background(), "buy milk"); err != nil {
		t.Fatalf("create err = %v", err)
	}
	if err := s.ToggleCompletion(context.Background(), "id-1"); err != nil {
		t.Fatalf("toggle err = %v", err)
	}
	if err := s.Delete(context.Background(), "id-1"); err != nil {
		t.Fatalf("delete err = %v", err)
	}

	if len(coll.inserts)+len(coll.toggles)+len(coll.deletes) != 0 {
		t.Fatalf("remote calls made: %v %v %v", coll.inserts, coll.toggles, coll.deletes)
	}
}

func TestCreateTrimsAndSucceeds(t *testing.T) {
	coll := &fakeCollection{}
	s := boundStore(coll)

	if err := s.Create(context.Background(), "  buy milk  "); err != nil {
		t.Fatalf("err = %v", err)
	}
	if len(coll.inserts) != 1 || coll.inserts[0] != "buy milk" {
		t.Fatalf("inserts = %v, want [buy milk]", coll.inserts)
	}
}

func TestCreateRetriesTransientFailure(t *testing.T) {
	coll := &fakeCollection{failLeft: 1, opErr: errors.New("transient")}
	s := boundStore(coll)

	if err := s.Create(context.Background(), "persist me"); err != nil {
		t.Fatalf("err = %v, want nil after retry", err)
	}
	if len(coll.inserts) != 2 {
		t.Fatalf("insert attempts = %d, want 2", len(coll.inserts))
	}
}

func TestCreateTerminalFailureReportsMutationError(t *testing.T) {
	lastErr := errors.New("store down")
	coll := &fakeCollection{failLeft: 100, opErr: lastErr}
	s := boundStore(coll)

	err := s.Create(context.Background(), "doomed")

	var mErr *MutationError
	if !errors.As(err, &mErr) {
		t.Fatalf("err = %v, want *MutationError", err)
	}
	if mErr.Op != "create" {
		t.Fatalf("op = %q, want create", mErr.Op)
	}
	if !errors.Is(err, lastErr) {
		t.Fatalf("terminal error %v does not wrap last attempt's error", err)
	}
	if len(coll.inserts) != 3 {
		t.Fatalf("insert attempts = %d, want 3", len(coll.inserts))
	}
}

func TestToggleNotFoundSurfaces(t *testing.T) {
	coll := &fakeCollection{failLeft: 100, opErr: ErrNotFound}
	s := boundStore(coll)

	err := s.ToggleCompletion(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubscribeDeliversOrderedSnapshots(t *testing.T) {
	coll := &fakeCollection{}
	s := NewStore(coll, fastExecutor())

	sub, err := s.Subscribe("user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	coll.feeds[0].snaps <- []Task{
		{ID: "a", CreatedAt: at(10)},
		{ID: "b", Completed: true, CreatedAt: at(20)},
		{ID: "c", CreatedAt: at(30)},
	}

	select {
	case snap := <-sub.Snapshots():
		got := ids(snap)
		want := []string{"c", "a", "b"}
		if !equalIDs(got, want) {
			t.Fatalf("snapshot = %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestResubscribeTearsDownPriorFeed(t *testing.T) {
	coll := &fakeCollection{}
	s := NewStore(coll, fastExecutor())

	if _, err := s.Subscribe("user-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := s.Subscribe("user-2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer second.Unsubscribe()

	if got := coll.feeds[0].closeCount(); got != 1 {
		t.Fatalf("first feed close count = %d, want 1", got)
	}
	if s.Principal() != "user-2" {
		t.Fatalf("principal = %q, want user-2", s.Principal())
	}
}

func TestUnsubscribeTwiceIsNoop(t *testing.T) {
	coll := &fakeCollection{}
	s := NewStore(coll, fastExecutor())

	sub, err := s.Subscribe("user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	if got := coll.feeds[0].closeCount(); got != 1 {
		t.Fatalf("close count = %d, want 1", got)
	}
}

func TestUnsubscribeUnblocksPendingDelivery(t *testing.T) {
	coll := &fakeCollection{}
	s := NewStore(coll, fastExecutor())

	sub, err := s.Subscribe("user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Two snapshots with nobody reading: the relay delivers one into its
	// buffer and sits on the send for the other.
	coll.feeds[0].snaps <- []Task{{ID: "a"}}
	coll.feeds[0].snaps <- []Task{{ID: "b"}}
	time.Sleep(50 * time.Millisecond)

	sub.Unsubscribe()

	// The relay goroutine must exit and close the channel even though the
	// second snapshot was never consumed.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-sub.Snapshots():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("snapshot channel not closed after Unsubscribe; relay still blocked")
		}
	}
}

func TestConcurrentSubscribesLeaveOneLiveFeed(t *testing.T) {
	coll := &fakeCollection{}
	s := NewStore(coll, fastExecutor())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Subscribe("user-1"); err != nil {
				t.Errorf("subscribe: %v", err)
			}
		}()
	}
	wg.Wait()

	coll.mu.Lock()
	feeds := coll.feeds
	coll.mu.Unlock()

	if len(feeds) != 10 {
		t.Fatalf("feeds opened = %d, want 10", len(feeds))
	}
	closed := 0
	for _, f := range feeds {
		closed += f.closeCount()
	}
	if closed != 9 {
		t.Fatalf("feeds closed = %d, want 9 (exactly one live)", closed)
	}
}

func TestFeedErrorSurfacesOnceAndStopsDelivery(t *testing.T) {
	coll := &fakeCollection{}
	s := NewStore(coll, fastExecutor())

	sub, err := s.Subscribe("user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	feedErr := errors.New("listener lost")
	coll.feeds[0].errs <- feedErr

	select {
	case got := <-sub.Errs():
		if !errors.Is(got, feedErr) {
			t.Fatalf("err = %v, want %v", got, feedErr)
		}
	case <-time.After(time.Second):
		t.Fatal("feed error not surfaced")
	}

	select {
	case _, open := <-sub.Snapshots():
		if open {
			t.Fatal("snapshot delivered after terminal feed error")
		}
	case <-time.After(time.Second):
		t.Fatal("snapshot channel not closed after feed error")
	}
}
