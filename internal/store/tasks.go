package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// InsertTask enqueues a materializer task, deduplicating on (name, document
// or view input) so re-deriving the same work twice is a no-op: the task
// queue behaves as a set, not a multiset.
func (s *Store) InsertTask(ctx context.Context, task types.Task) error {
	doc := ""
	if task.Input.DocumentID != nil {
		doc = string(*task.Input.DocumentID)
	}
	view := ""
	if task.Input.ViewID != nil {
		view = string(*task.Input.ViewID)
	}

	suffix := s.dialect.UpsertSuffix([]string{"name", "document_id", "view_id"}, []string{"retries"})
	q := fmt.Sprintf(`INSERT INTO tasks (name, document_id, view_id, retries)
		VALUES (%s, %s, %s, %s) %s`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), suffix)
	_, err := s.exec.ExecContext(ctx, q, string(task.Name), doc, view, task.Retries)
	if err != nil {
		return fmt.Errorf("store: insert task: %w", err)
	}
	return nil
}

// GetTasks returns every pending task of the given name, the pool's unit of
// work for a single worker iteration.
func (s *Store) GetTasks(ctx context.Context, name types.TaskName) ([]types.Task, error) {
	q := fmt.Sprintf(`SELECT document_id, view_id, retries FROM tasks WHERE name = %s`, s.ph(1))
	rows, err := s.exec.QueryContext(ctx, q, string(name))
	if err != nil {
		return nil, fmt.Errorf("store: get tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Task
	for rows.Next() {
		var doc, view string
		var retries int
		if err := rows.Scan(&doc, &view, &retries); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		input := types.TaskInput{}
		if doc != "" {
			d := types.DocumentID(doc)
			input.DocumentID = &d
		}
		if view != "" {
			v := types.ViewID(view)
			input.ViewID = &v
		}
		out = append(out, types.Task{Name: name, Input: input, Retries: retries})
	}
	return out, rows.Err()
}

// RemoveTask deletes a completed or permanently-failed task from the queue.
func (s *Store) RemoveTask(ctx context.Context, task types.Task) error {
	doc := ""
	if task.Input.DocumentID != nil {
		doc = string(*task.Input.DocumentID)
	}
	view := ""
	if task.Input.ViewID != nil {
		view = string(*task.Input.ViewID)
	}
	q := fmt.Sprintf(`DELETE FROM tasks WHERE name = %s AND document_id = %s AND view_id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	_, err := s.exec.ExecContext(ctx, q, string(task.Name), doc, view)
	if err != nil {
		return fmt.Errorf("store: remove task: %w", err)
	}
	return nil
}

// IncrementTaskRetries bumps a task's retry counter in place, used by the
// worker pool's backoff loop before requeueing a failed task.
func (s *Store) IncrementTaskRetries(ctx context.Context, task types.Task) error {
	doc := ""
	if task.Input.DocumentID != nil {
		doc = string(*task.Input.DocumentID)
	}
	view := ""
	if task.Input.ViewID != nil {
		view = string(*task.Input.ViewID)
	}
	q := fmt.Sprintf(`UPDATE tasks SET retries = retries + 1 WHERE name = %s AND document_id = %s AND view_id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	res, err := s.exec.ExecContext(ctx, q, string(task.Name), doc, view)
	if err != nil {
		return fmt.Errorf("store: increment task retries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: increment task retries: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
