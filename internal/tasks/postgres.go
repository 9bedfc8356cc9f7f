package tasks

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
)

const feedChannel = "tasks_changed"

// PGCollection implements Collection over Postgres. The live feed rides on
// LISTEN/NOTIFY: a trigger pings the tasks_changed channel with the affected
// principal and the watcher re-queries the full snapshot.
type PGCollection struct {
	DB       *sql.DB
	ConnInfo string
}

func NewPGCollection(db *sql.DB, connInfo string) *PGCollection {
	return &PGCollection{DB: db, ConnInfo: connInfo}
}

func (c *PGCollection) Snapshot(ctx context.Context, principal string) ([]Task, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT id, text, completed, created_at
		FROM tasks
		WHERE principal = $1
		ORDER BY created_at DESC, id
	`, principal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *PGCollection) Insert(ctx context.Context, principal, text string) (Task, error) {
	t := Task{Text: text}
	err := c.DB.QueryRowContext(ctx, `
		INSERT INTO tasks (principal, text)
		VALUES ($1, $2)
		RETURNING id, completed, created_at
	`, principal, text).Scan(&t.ID, &t.Completed, &t.CreatedAt)
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func (c *PGCollection) Toggle(ctx context.Context, principal, id string) error {
	res, err := c.DB.ExecContext(ctx, `
		UPDATE tasks
		SET completed = NOT completed
		WHERE id = $1 AND principal = $2
	`, id, principal)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *PGCollection) Delete(ctx context.Context, principal, id string) error {
	res, err := c.DB.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE id = $1 AND principal = $2
	`, id, principal)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *PGCollection) Watch(principal string) (Feed, error) {
	listener := pq.NewListener(c.ConnInfo, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Printf("[WARN] feed listener event %d: %v", ev, err)
			}
		})
	if err := listener.Listen(feedChannel); err != nil {
		_ = listener.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &pgFeed{
		coll:      c,
		principal: principal,
		listener:  listener,
		snapshots: make(chan []Task, 1),
		errs:      make(chan error, 1),
		cancel:    cancel,
	}
	go f.run(ctx)
	return f, nil
}

type pgFeed struct {
	coll      *PGCollection
	principal string
	listener  *pq.Listener
	snapshots chan []Task
	errs      chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (f *pgFeed) Snapshots() <-chan []Task { return f.snapshots }
func (f *pgFeed) Errs() <-chan error       { return f.errs }

func (f *pgFeed) Close() {
	f.closeOnce.Do(func() {
		f.cancel()
		_ = f.listener.Close()
	})
}

func (f *pgFeed) run(ctx context.Context) {
	defer close(f.snapshots)

	// Initial state before any notification arrives.
	if !f.push(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-f.listener.Notify:
			// n is nil after a connection reset; the state of the world is
			// unknown at that point, so re-query just like a real ping.
			if n != nil && n.Extra != f.principal {
				continue
			}
			if !f.push(ctx) {
				return
			}
		}
	}
}

func (f *pgFeed) push(ctx context.Context) bool {
	snap, err := f.coll.Snapshot(ctx, f.principal)
	if err != nil {
		if ctx.Err() == nil {
			f.errs <- err
		}
		return false
	}
	select {
	case f.snapshots <- snap:
	case <-ctx.Done():
		return false
	}
	return true
}
