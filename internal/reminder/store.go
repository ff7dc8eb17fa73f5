// Package reminder stores reminders and fires them on their schedule.
package reminder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/chathub/internal/filestore"
)

// Store owns the reminder collection. Every mutation rewrites the backing
// file before returning; on a write failure the in-memory change is kept and
// the error is returned.
//
// A reminder being delivered is marked in-flight. Delete blocks until the
// in-flight delivery of the same reminder has finished.
type Store struct {
	mu        sync.Mutex
	file      *filestore.File[Reminder]
	reminders []Reminder
	nextID    int
	inflight  map[int]chan struct{}
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Store)

// WithClock overrides time.Now for CreatedAt and LastTriggered stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the reminders stored at path. A missing file starts empty.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		file:     filestore.New[Reminder](path),
		inflight: make(map[int]chan struct{}),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	reminders, err := s.file.Load()
	if err != nil {
		return nil, fmt.Errorf("loading reminders: %w", err)
	}
	s.reminders = reminders
	for _, r := range reminders {
		if r.ID >= s.nextID {
			s.nextID = r.ID
		}
	}
	s.nextID++
	return s, nil
}

// NextID reports the ID the next Add will assign.
func (s *Store) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Add validates req and records an active reminder. It does not schedule
// anything; use Scheduler.Add for that.
func (s *Store) Add(req Request) (Reminder, error) {
	if _, err := ParseTimeSpec(req.Time); err != nil {
		return Reminder{}, err
	}
	repeat, err := ParseRepeat(string(req.Repeat))
	if err != nil {
		return Reminder{}, err
	}
	days := make([]string, 0, len(req.Days))
	days = append(days, req.Days...)

	s.mu.Lock()
	defer s.mu.Unlock()

	r := Reminder{
		ID:          s.nextID,
		Time:        req.Time,
		Message:     req.Message,
		Destination: req.Destination,
		Repeat:      repeat,
		Days:        days,
		Status:      StatusActive,
		CreatedAt:   s.now(),
	}
	s.reminders = append(s.reminders, r)
	s.nextID++
	if err := s.save(); err != nil {
		return r, err
	}

	s.logger.Info("reminder added", "reminder_id", r.ID, "time", r.Time, "repeat", r.Repeat)
	return r, nil
}

// List returns reminders in insertion order. An empty status returns all
// reminders, deleted ones included.
func (s *Store) List(status Status) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		if status == "" || r.Status == status {
			out = append(out, clone(r))
		}
	}
	return out
}

// Get returns the reminder with id or ErrNotFound.
func (s *Store) Get(id int) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Reminder{}, ErrNotFound
	}
	return clone(s.reminders[i]), nil
}

// Delete marks a reminder deleted. It reports false when no reminder had
// that id. If the reminder is being delivered, Delete waits for the
// delivery to finish first.
func (s *Store) Delete(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		done, busy := s.inflight[id]
		if !busy {
			break
		}
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.reminders[i].Status = StatusDeleted
	if err := s.save(); err != nil {
		return true, err
	}

	s.logger.Info("reminder deleted", "reminder_id", id)
	return true, nil
}

// Format renders the active reminders.
func (s *Store) Format() string {
	return Format(s.List(StatusActive))
}

// beginFire re-reads the reminder and, if it is still active and not
// already being delivered, marks it in-flight. ok is false otherwise and
// the caller must not deliver.
func (s *Store) beginFire(id int) (r Reminder, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.reminders[i].Status != StatusActive {
		return Reminder{}, false
	}
	if _, busy := s.inflight[id]; busy {
		return Reminder{}, false
	}
	s.inflight[id] = make(chan struct{})
	return clone(s.reminders[i]), true
}

// finishFire stamps the delivery, completes one-shot reminders and clears
// the in-flight mark. It runs whether or not the delivery succeeded.
func (s *Store) finishFire(id int) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if done, ok := s.inflight[id]; ok {
			close(done)
			delete(s.inflight, id)
		}
	}()

	i := s.indexOf(id)
	if i < 0 {
		return Reminder{}, ErrNotFound
	}
	now := s.now()
	r := &s.reminders[i]
	r.LastTriggered = &now
	if r.Repeat == RepeatOnce && r.Status == StatusActive {
		r.Status = StatusCompleted
	}
	if err := s.save(); err != nil {
		return clone(*r), err
	}
	return clone(*r), nil
}

func (s *Store) indexOf(id int) int {
	for i, r := range s.reminders {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// save must be called with s.mu held.
func (s *Store) save() error {
	if err := s.file.Save(s.reminders); err != nil {
		s.logger.Error("saving reminders failed", "path", s.file.Path(), "error", err)
		return fmt.Errorf("saving reminders: %w", err)
	}
	return nil
}

func clone(r Reminder) Reminder {
	if r.Days != nil {
		r.Days = append([]string(nil), r.Days...)
	}
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		r.LastTriggered = &t
	}
	return r
}
