// Package todo keeps the todo list and persists it to a single file.
package todo

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/chathub/internal/filestore"
)

// Store owns the todo collection. Every mutation rewrites the backing file
// before returning; a write failure is reported and the in-memory state is
// kept, so memory and disk may diverge until the next successful write.
type Store struct {
	mu     sync.Mutex
	file   *filestore.File[Todo]
	todos  []Todo
	nextID int
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Store)

// WithClock overrides time.Now for CreatedAt and CompletedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the todos stored at path. A missing file starts an empty list.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		file:   filestore.New[Todo](path),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	todos, err := s.file.Load()
	if err != nil {
		return nil, fmt.Errorf("loading todos: %w", err)
	}
	s.todos = todos
	s.nextID = nextID(todos)
	return s, nil
}

func nextID(todos []Todo) int {
	maxID := 0
	for _, t := range todos {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return maxID + 1
}

// NextID reports the ID the next Add will assign.
func (s *Store) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Add appends a pending todo. An empty priority means medium; dueDate may be empty.
func (s *Store) Add(task string, priority Priority, dueDate string) (Todo, error) {
	p, err := ParsePriority(string(priority))
	if err != nil {
		return Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := Todo{
		ID:        s.nextID,
		Task:      task,
		Priority:  p,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	if dueDate != "" {
		d := dueDate
		t.DueDate = &d
	}

	s.todos = append(s.todos, t)
	s.nextID++
	if err := s.save(); err != nil {
		return t, err
	}

	s.logger.Info("todo added", "id", t.ID, "task", task)
	return t, nil
}

// List returns todos in insertion order. An empty status returns all of them.
func (s *Store) List(status Status) []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Todo, 0, len(s.todos))
	for _, t := range s.todos {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the todo with id or ErrNotFound.
func (s *Store) Get(id int) (Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Todo{}, ErrNotFound
	}
	return s.todos[i], nil
}

// Complete marks a todo done and stamps CompletedAt. Completing an already
// completed todo changes nothing and succeeds.
func (s *Store) Complete(id int) (Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Todo{}, ErrNotFound
	}
	if s.todos[i].Status == StatusCompleted {
		return s.todos[i], nil
	}

	now := s.now()
	s.todos[i].Status = StatusCompleted
	s.todos[i].CompletedAt = &now
	if err := s.save(); err != nil {
		return s.todos[i], err
	}

	s.logger.Info("todo completed", "id", id, "task", s.todos[i].Task)
	return s.todos[i], nil
}

// Delete removes a todo. It reports false when no todo had that id.
func (s *Store) Delete(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	removed := s.todos[i]
	s.todos = append(s.todos[:i:i], s.todos[i+1:]...)
	if err := s.save(); err != nil {
		return true, err
	}

	s.logger.Info("todo deleted", "id", id, "task", removed.Task)
	return true, nil
}

// Update applies the non-nil fields of p. An invalid priority or status
// leaves the todo unchanged.
func (s *Store) Update(id int, p Patch) (Todo, error) {
	var priority Priority
	if p.Priority != nil {
		var err error
		if priority, err = ParsePriority(string(*p.Priority)); err != nil {
			return Todo{}, err
		}
	}
	var status Status
	if p.Status != nil {
		var err error
		if status, err = ParseStatus(string(*p.Status)); err != nil {
			return Todo{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Todo{}, ErrNotFound
	}
	t := &s.todos[i]
	if p.Task != nil {
		t.Task = *p.Task
	}
	if p.Priority != nil {
		t.Priority = priority
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			t.DueDate = nil
		} else {
			d := *p.DueDate
			t.DueDate = &d
		}
	}
	if p.Status != nil && status != t.Status {
		t.Status = status
		if t.Status == StatusCompleted {
			now := s.now()
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
	}
	if err := s.save(); err != nil {
		return *t, err
	}

	s.logger.Info("todo updated", "id", id)
	return *t, nil
}

// Summary counts todos by status.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{Total: len(s.todos)}
	for _, t := range s.todos {
		switch t.Status {
		case StatusPending:
			sum.Pending++
		case StatusCompleted:
			sum.Completed++
		}
	}
	if sum.Total > 0 {
		sum.CompletionRate = float64(sum.Completed) / float64(sum.Total) * 100
	}
	return sum
}

func (s *Store) indexOf(id int) int {
	for i, t := range s.todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// save must be called with s.mu held.
func (s *Store) save() error {
	if err := s.file.Save(s.todos); err != nil {
		s.logger.Error("saving todos failed", "path", s.file.Path(), "error", err)
		return fmt.Errorf("saving todos: %w", err)
	}
	return nil
}
