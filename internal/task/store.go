// Package task provides the durable task queue and scheduling engine for LEGION.
// This file implements the storage layer: an active queue file, a terminal
// archive file, and a snapshot artifact directory, all under one session
// state directory. Writes are atomic and flock-guarded via internal/store.
package task

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/clock"
	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
	"github.com/mrz1836/legion/internal/store"
)

// queueState is the persisted shape of queue.json. The id counter lives with
// the queue so ids stay monotonic across restarts.
type queueState struct {
	SchemaVersion string        `json:"schema_version"`
	NextID        int64         `json:"next_id"`
	Tasks         []domain.Task `json:"tasks"`
}

// archiveState is the persisted shape of archive.json.
type archiveState struct {
	SchemaVersion string        `json:"schema_version"`
	Tasks         []domain.Task `json:"tasks"`
}

// Store persists the task queue for one session partition. Active tasks live
// in queue.json; tasks that reached a resting state move to archive.json so
// the hot file stays small. Page snapshots captured by scan tasks are written
// as JSON artifacts under the snapshots directory.
type Store struct {
	queue     *store.File
	archive   *store.File
	snapshots string
	logger    zerolog.Logger
}

// NewStore creates a Store rooted at the given session state directory.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{
		queue:     store.NewFile(filepath.Join(dir, constants.QueueFileName)),
		archive:   store.NewFile(filepath.Join(dir, constants.ArchiveFileName)),
		snapshots: filepath.Join(dir, constants.SnapshotsDir),
		logger:    logger.With().Str("component", "task_store").Logger(),
	}
}

// Enqueue assigns the next id to the task and appends it to the active queue.
// Returns the assigned id.
func (s *Store) Enqueue(ctx context.Context, t *domain.Task) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("failed to enqueue: task %w", legionerrors.ErrEmptyValue)
	}

	_, err := store.Update(ctx, s.queue, func(state *queueState) error {
		if state.NextID == 0 {
			state.NextID = 1
		}
		t.ID = state.NextID
		state.NextID++
		state.SchemaVersion = constants.QueueSchemaVersion
		state.Tasks = append(state.Tasks, *t)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug().
		Int64("task_id", t.ID).
		Str("kind", t.Kind.String()).
		Time("not_before", t.NotBefore).
		Msg("task enqueued")
	return t.ID, nil
}

// Get retrieves a task by id, checking the active queue first and falling
// back to the archive. Returns ErrTaskNotFound if neither has it.
func (s *Store) Get(ctx context.Context, id int64) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range active {
		if active[i].ID == id {
			return &active[i], nil
		}
	}

	archived, err := s.ListArchived(ctx)
	if err != nil {
		return nil, err
	}
	for i := range archived {
		if archived[i].ID == id {
			return &archived[i], nil
		}
	}

	return nil, fmt.Errorf("task %d: %w", id, legionerrors.ErrTaskNotFound)
}

// Update replaces the task's record in the active queue.
func (s *Store) Update(ctx context.Context, t *domain.Task) error {
	if t == nil {
		return fmt.Errorf("failed to update: task %w", legionerrors.ErrEmptyValue)
	}

	_, err := store.Update(ctx, s.queue, func(state *queueState) error {
		for i := range state.Tasks {
			if state.Tasks[i].ID == t.ID {
				state.Tasks[i] = *t
				return nil
			}
		}
		return fmt.Errorf("task %d: %w", t.ID, legionerrors.ErrTaskNotFound)
	})
	return err
}

// Archive removes the task from the active queue and appends it to the
// archive. Called once a task reaches a resting state.
func (s *Store) Archive(ctx context.Context, t *domain.Task) error {
	if t == nil {
		return fmt.Errorf("failed to archive: task %w", legionerrors.ErrEmptyValue)
	}

	_, err := store.Update(ctx, s.queue, func(state *queueState) error {
		for i := range state.Tasks {
			if state.Tasks[i].ID == t.ID {
				state.Tasks = append(state.Tasks[:i], state.Tasks[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("task %d: %w", t.ID, legionerrors.ErrTaskNotFound)
	})
	if err != nil {
		return err
	}

	_, err = store.Update(ctx, s.archive, func(state *archiveState) error {
		state.SchemaVersion = constants.QueueSchemaVersion
		state.Tasks = append(state.Tasks, *t)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Int64("task_id", t.ID).
		Str("status", t.Status.String()).
		Msg("task archived")
	return nil
}

// ListActive returns all tasks in the active queue, sorted by id.
// A missing queue file yields an empty list.
func (s *Store) ListActive(ctx context.Context) ([]domain.Task, error) {
	var state queueState
	if err := s.queue.Load(ctx, &state); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []domain.Task{}, nil
		}
		return nil, err
	}
	sort.Slice(state.Tasks, func(i, j int) bool { return state.Tasks[i].ID < state.Tasks[j].ID })
	return state.Tasks, nil
}

// ListArchived returns all archived tasks, sorted by id.
func (s *Store) ListArchived(ctx context.Context) ([]domain.Task, error) {
	var state archiveState
	if err := s.archive.Load(ctx, &state); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []domain.Task{}, nil
		}
		return nil, err
	}
	sort.Slice(state.Tasks, func(i, j int) bool { return state.Tasks[i].ID < state.Tasks[j].ID })
	return state.Tasks, nil
}

// Cancel transitions a pending task to cancelled and archives it.
// Tasks that already left the pending state cannot be cancelled: a running
// action must complete or fail cleanly, and resting tasks are history.
func (s *Store) Cancel(ctx context.Context, clk clock.Clock, id int64) error {
	var cancelled *domain.Task

	_, err := store.Update(ctx, s.queue, func(state *queueState) error {
		for i := range state.Tasks {
			if state.Tasks[i].ID != id {
				continue
			}
			t := &state.Tasks[i]
			if t.Status != constants.TaskStatusPending {
				return fmt.Errorf("task %d is %s: %w", id, t.Status, legionerrors.ErrTaskNotCancellable)
			}
			if err := Transition(ctx, clk, t, constants.TaskStatusCancelled, "cancelled by operator"); err != nil {
				return err
			}
			out := *t
			cancelled = &out
			state.Tasks = append(state.Tasks[:i], state.Tasks[i+1:]...)
			return nil
		}
		return fmt.Errorf("task %d: %w", id, legionerrors.ErrTaskNotFound)
	})
	if err != nil {
		return err
	}

	_, err = store.Update(ctx, s.archive, func(state *archiveState) error {
		state.SchemaVersion = constants.QueueSchemaVersion
		state.Tasks = append(state.Tasks, *cancelled)
		return nil
	})
	return err
}

// SaveSnapshot writes a page snapshot artifact under the snapshots directory
// and returns the file path. Snapshot files are named by artifact id.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) (string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return "", err
	}
	if snap == nil || snap.ID == "" {
		return "", fmt.Errorf("failed to save snapshot: id %w", legionerrors.ErrEmptyValue)
	}

	if err := os.MkdirAll(s.snapshots, store.DirPerm); err != nil {
		return "", fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	path := filepath.Join(s.snapshots, snap.ID+".json")
	f := store.NewFile(path)
	if err := f.Save(ctx, snap); err != nil {
		return "", err
	}
	return path, nil
}
