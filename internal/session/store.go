// Package session holds the editor's in-memory view of the saved calendars.
//
// A Store wraps a calendar repository for one editing session. It caches
// the calendar listing, tracks the calendar being edited, and exposes a
// loading flag and a user-facing error message that observers render.
// Every successful mutation refreshes the cached listing before the call
// returns.
//
// Calls are not serialized: two overlapping saves of the same calendar
// both reach the repository and the last one to be written wins. Callers
// are expected to debounce editor saves. A listing fetched before another
// one never replaces it in the cache.
package session

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/repository"
	"github.com/JamesPrial/visual-calendar/internal/snapshot"
)

// Repository is the persistence the Store drives. *repository.Repository
// satisfies it.
type Repository interface {
	Init(ctx context.Context) error
	List(ctx context.Context) []calendar.Meta
	Get(ctx context.Context, id string) (calendar.Document, error)
	Create(ctx context.Context, p repository.CreateParams) (calendar.Meta, error)
	Update(ctx context.Context, id string, p repository.UpdateParams) (calendar.Meta, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id string) (string, error)
	Import(ctx context.Context, text string) (calendar.Meta, error)
}

// User-facing error messages.
const (
	MsgNotFound      = "This calendar could not be found."
	MsgQuotaExceeded = "Storage is full. Delete some old calendars and try again."
	MsgInvalidImport = "This file is not a valid calendar."
	MsgInvalidData   = "This calendar contains invalid data."
	MsgGeneric       = "Something went wrong. Please try again."
)

// State is a snapshot of the session as observers see it.
type State struct {
	Calendars []calendar.Meta
	CurrentID string
	IsLoading bool

	// Error is the message of the last failed operation, or "".
	Error string
}

// Store is the session state container. The zero value is not usable; use
// New.
type Store struct {
	repo     Repository
	snapshot snapshot.Producer
	logger   *log.Logger

	mu        sync.Mutex
	calendars []calendar.Meta
	currentID string
	pending   int
	errMsg    string

	// listSeq numbers listing fetches; appliedSeq is the fetch the cache
	// currently holds.
	listSeq    uint64
	appliedSeq uint64

	nextSub     int
	subscribers map[int]func(State)
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshotProducer sets the producer used for preview thumbnails on
// save.
func WithSnapshotProducer(p snapshot.Producer) Option {
	return func(s *Store) { s.snapshot = p }
}

// WithLogger sets the logger receiving the underlying failure causes.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a Store over repo. Thumbnails are disabled unless a producer
// is supplied.
func New(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:        repo,
		snapshot:    snapshot.Disabled{},
		logger:      log.New(io.Discard),
		calendars:   []calendar.Meta{},
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state. The returned slice is a copy.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{
		Calendars: slices.Clone(s.calendars),
		CurrentID: s.currentID,
		IsLoading: s.pending > 0,
		Error:     s.errMsg,
	}
}

// Subscribe registers fn to be called with the new state after every
// change. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// update applies change under the lock and notifies subscribers outside it.
func (s *Store) update(change func()) {
	s.mu.Lock()
	change()
	st := s.stateLocked()
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// begin marks an operation in flight and clears the previous error.
func (s *Store) begin() {
	s.update(func() {
		s.pending++
		s.errMsg = ""
	})
}

// finish ends an operation. On failure the cause is logged and replaced by
// a user-facing message.
func (s *Store) finish(op, id string, err error, change func()) {
	if err != nil {
		s.logger.Error("calendar operation failed", "op", op, "id", id, "err", err)
	}
	s.update(func() {
		s.pending--
		if err != nil {
			s.errMsg = userMessage(op, err)
			return
		}
		if change != nil {
			change()
		}
	})
}

// listing is a calendar listing tagged with the order it was fetched in.
type listing struct {
	seq   uint64
	metas []calendar.Meta
}

// fetchList reads the listing. The sequence number is taken before the
// read, so a later number always reflects every write that completed before
// the earlier fetch began.
func (s *Store) fetchList(ctx context.Context) listing {
	s.mu.Lock()
	s.listSeq++
	seq := s.listSeq
	s.mu.Unlock()
	return listing{seq: seq, metas: s.repo.List(ctx)}
}

// applyList caches l unless a later fetch is already cached. Callers hold
// s.mu.
func (s *Store) applyList(l listing) {
	if l.seq < s.appliedSeq {
		return
	}
	s.appliedSeq = l.seq
	s.calendars = l.metas
}

func userMessage(op string, err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return MsgNotFound
	case errors.Is(err, repository.ErrQuotaExceeded):
		return MsgQuotaExceeded
	case errors.Is(err, repository.ErrValidation):
		if op == "import" {
			return MsgInvalidImport
		}
		return MsgInvalidData
	default:
		return MsgGeneric
	}
}
