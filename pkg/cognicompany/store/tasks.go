package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Task is a to-do item tracked on behalf of a user.
type Task struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	DueDate       string    `json:"due_date,omitempty"`
	EstimatedTime string    `json:"estimated_time,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TaskStore persists Task records keyed by task id.
type TaskStore struct {
	bucket *Bucket
}

// NewTaskStore returns the task store backed by db.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{bucket: db.Bucket("tasks")}
}

// Put stores t under its id. Storing the same id twice overwrites.
func (s *TaskStore) Put(ctx context.Context, t Task) error {
	if t.ID == "" {
		return errors.New("task without id")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", t.ID, err)
	}
	return s.bucket.Put(ctx, t.ID, raw)
}

// Get returns the task with id or ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, id string) (Task, error) {
	var t Task
	raw, err := s.bucket.Get(ctx, id)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return t, nil
}

// ListByUser returns the tasks of userID ordered by creation time.
func (s *TaskStore) ListByUser(ctx context.Context, userID string) ([]Task, error) {
	tasks := []Task{}
	err := s.bucket.ForEach(ctx, func(key string, val []byte) error {
		var t Task
		if err := json.Unmarshal(val, &t); err != nil {
			return fmt.Errorf("decoding task %s: %w", key, err)
		}
		if t.UserID == userID {
			tasks = append(tasks, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Delete removes the task with id. Missing tasks are not an error.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	return s.bucket.Delete(ctx, id)
}
