package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/chathub/internal/messenger"
)

const DefaultPollInterval = time.Second

// Delivery describes one attempt to deliver a fired reminder.
type Delivery struct {
	ReminderID  int
	Destination string
	Body        string
	Result      messenger.Result
	At          time.Time
}

// trigger is one recurring fire time of a reminder.
type trigger struct {
	reminderID int
	at         ClockTime
	weekly     bool
	weekday    time.Weekday
	next       time.Time
}

func (t *trigger) advance(from time.Time) {
	if t.weekly {
		t.next = nextWeekly(from, t.weekday, t.at)
	} else {
		t.next = nextDaily(from, t.at)
	}
}

// Scheduler fires reminders from a Store through a Messenger. Triggers are
// rebuilt from the active reminders when the Scheduler is created.
type Scheduler struct {
	store    *Store
	sender   messenger.Messenger
	clock    Clock
	loc      *time.Location
	interval time.Duration
	observe  func(Delivery)
	logger   *slog.Logger

	mu       sync.Mutex
	triggers map[int][]*trigger

	lifeMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithLocation sets the time zone reminder clock times are read in.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.loc = loc }
}

// WithPollInterval sets how often Start's loop checks for due triggers.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDeliveryObserver registers fn to be called after every delivery
// attempt, successful or not.
func WithDeliveryObserver(fn func(Delivery)) SchedulerOption {
	return func(s *Scheduler) { s.observe = fn }
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler and registers triggers for every active
// reminder in store.
func NewScheduler(store *Store, sender messenger.Messenger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:    store,
		sender:   sender,
		clock:    SystemClock{},
		loc:      time.Local,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		triggers: make(map[int][]*trigger),
	}
	for _, o := range opts {
		o(s)
	}

	active := store.List(StatusActive)
	for _, r := range active {
		if err := s.register(r); err != nil {
			s.logger.Warn("reminder not scheduled", "reminder_id", r.ID, "error", err)
		}
	}
	s.logger.Debug("scheduler initialised", "active", len(active))
	return s
}

func (s *Scheduler) now() time.Time {
	return s.clock.Now().In(s.loc)
}

// Add records a reminder and schedules it. Invalid times or weekly
// reminders without a recognised weekday are rejected before anything is
// stored. A reminder whose record could not be written is not scheduled.
func (s *Scheduler) Add(req Request) (Reminder, error) {
	if _, err := s.buildTriggers(req.Time, req.Repeat, req.Days, 0); err != nil {
		return Reminder{}, err
	}

	r, err := s.store.Add(req)
	if err != nil {
		return r, err
	}
	if err := s.register(r); err != nil {
		return r, err
	}
	return r, nil
}

// Delete soft-deletes a reminder and drops its triggers. If the reminder is
// being delivered, Delete returns only after that delivery has finished, and
// no delivery starts afterwards.
func (s *Scheduler) Delete(id int) (bool, error) {
	found, err := s.store.Delete(id)
	if found {
		s.unregister(id)
	}
	return found, err
}

func (s *Scheduler) Get(id int) (Reminder, error) { return s.store.Get(id) }

func (s *Scheduler) List(status Status) []Reminder { return s.store.List(status) }

func (s *Scheduler) Format() string { return s.store.Format() }

// NextFire reports the earliest pending fire time of a reminder.
func (s *Scheduler) NextFire(id int) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	for _, t := range s.triggers[id] {
		if earliest.IsZero() || t.next.Before(earliest) {
			earliest = t.next
		}
	}
	return earliest, !earliest.IsZero()
}

func (s *Scheduler) buildTriggers(spec string, repeat Repeat, days []string, id int) ([]*trigger, error) {
	at, err := ParseTimeSpec(spec)
	if err != nil {
		return nil, err
	}
	repeat, err = ParseRepeat(string(repeat))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if repeat != RepeatWeekly {
		t := &trigger{reminderID: id, at: at}
		t.advance(now)
		return []*trigger{t}, nil
	}

	var out []*trigger
	seen := make(map[time.Weekday]bool)
	for _, name := range days {
		d, ok := ParseWeekday(name)
		if !ok {
			s.logger.Warn("unknown weekday ignored", "reminder_id", id, "day", name)
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		t := &trigger{reminderID: id, at: at, weekly: true, weekday: d}
		t.advance(now)
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoDays, days)
	}
	return out, nil
}

func (s *Scheduler) register(r Reminder) error {
	ts, err := s.buildTriggers(r.Time, r.Repeat, r.Days, r.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.triggers[r.ID] = ts
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) unregister(id int) {
	s.mu.Lock()
	delete(s.triggers, id)
	s.mu.Unlock()
}

// RunPending fires every reminder with a trigger at or before now. A
// reminder fires at most once per call even if several of its triggers are
// due. Triggers that were missed while nothing was polling fire once, late.
func (s *Scheduler) RunPending(ctx context.Context) {
	now := s.now()

	type due struct {
		id int
		at time.Time
	}
	var pending []due

	s.mu.Lock()
	for id, ts := range s.triggers {
		var first time.Time
		for _, t := range ts {
			if t.next.After(now) {
				continue
			}
			if first.IsZero() || t.next.Before(first) {
				first = t.next
			}
			t.advance(now)
		}
		if !first.IsZero() {
			pending = append(pending, due{id: id, at: first})
		}
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].at.Equal(pending[j].at) {
			return pending[i].at.Before(pending[j].at)
		}
		return pending[i].id < pending[j].id
	})
	for _, p := range pending {
		s.fire(ctx, p.id)
	}
}

func (s *Scheduler) fire(ctx context.Context, id int) {
	r, ok := s.store.beginFire(id)
	if !ok {
		if cur, err := s.store.Get(id); err != nil || cur.Status != StatusActive {
			s.logger.Debug("skipping fire for inactive reminder", "reminder_id", id)
			s.unregister(id)
		}
		return
	}

	body := DeliveryText(r.Message)
	res := s.sender.SendText(ctx, r.Destination, body)
	if res.OK {
		s.logger.Info("reminder delivered", "reminder_id", id, "destination", r.Destination)
	} else {
		s.logger.Warn("reminder delivery failed", "reminder_id", id, "destination", r.Destination, "detail", res.Detail)
	}

	updated, err := s.store.finishFire(id)
	if err != nil {
		s.logger.Error("recording reminder fire failed", "reminder_id", id, "error", err)
	}
	if updated.Status != StatusActive {
		s.unregister(id)
	}

	if s.observe != nil {
		s.observe(Delivery{
			ReminderID:  id,
			Destination: r.Destination,
			Body:        body,
			Result:      res,
			At:          s.now(),
		})
	}
}

// Start runs RunPending on a ticker in a background goroutine. Calling
// Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(s.stopCh, s.doneCh)
	s.logger.Info("reminder scheduler started", "interval", s.interval)
}

// Stop halts the loop and waits for the current iteration to finish.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	if !s.running {
		s.lifeMu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.lifeMu.Unlock()

	<-done
	s.logger.Info("reminder scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is cancelled, then stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	// Deliveries in progress finish even when Stop is called; the messenger's
	// own timeout bounds them.
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			s.RunPending(ctx)
		}
	}
}
