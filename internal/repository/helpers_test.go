package repository_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/repository"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var epoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// fakeClock returns start, start+step, start+2*step, ...
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

// sequentialIDs returns a generator producing id-1, id-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// quotaOnceEngine rejects the first failures batches that write a plain
// calendar body, as a full browser store would.
type quotaOnceEngine struct {
	storage.Engine

	mu       sync.Mutex
	failures int
	rejected int
}

func (e *quotaOnceEngine) Apply(ctx context.Context, ops ...storage.Op) error {
	e.mu.Lock()
	if e.failures > 0 && writesPlainBody(ops) {
		e.failures--
		e.rejected++
		e.mu.Unlock()
		return fmt.Errorf("simulated: %w", storage.ErrQuotaExceeded)
	}
	e.mu.Unlock()
	return e.Engine.Apply(ctx, ops...)
}

func writesPlainBody(ops []storage.Op) bool {
	for _, op := range ops {
		if !op.Delete && strings.HasPrefix(op.Key, repository.DocPrefix) &&
			!strings.HasSuffix(op.Key, repository.CompressedSuffix) {
			return true
		}
	}
	return false
}

// failingEngine fails every Apply with a non-quota error.
type failingEngine struct {
	storage.Engine
}

func (failingEngine) Apply(context.Context, ...storage.Op) error {
	return fmt.Errorf("disk on fire")
}

type fixture struct {
	engine storage.Engine
	repo   *repository.Repository
	clock  *fakeClock
}

func newFixture(t *testing.T, opts ...repository.Option) *fixture {
	t.Helper()
	return newFixtureWithEngine(t, storage.NewMemoryEngine(0), opts...)
}

func newFixtureWithEngine(t *testing.T, engine storage.Engine, opts ...repository.Option) *fixture {
	t.Helper()
	clock := &fakeClock{t: epoch, step: time.Second}
	all := append([]repository.Option{
		repository.WithClock(clock.Now),
		repository.WithIDGenerator(sequentialIDs()),
	}, opts...)
	return &fixture{engine: engine, repo: repository.New(engine, all...), clock: clock}
}

func (f *fixture) create(t *testing.T, name string) calendar.Meta {
	t.Helper()
	meta, err := f.repo.Create(context.Background(), repository.CreateParams{
		Name:     name,
		FormData: calendar.DefaultFormData(),
	})
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return meta
}

func (f *fixture) get(t *testing.T, id string) calendar.Document {
	t.Helper()
	doc, err := f.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%q): %v", id, err)
	}
	return doc
}

func (f *fixture) put(t *testing.T, key, value string) {
	t.Helper()
	if err := f.engine.Apply(context.Background(), storage.Put(key, []byte(value))); err != nil {
		t.Fatalf("engine Put(%q): %v", key, err)
	}
}

func (f *fixture) raw(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, err := f.engine.Get(context.Background(), key)
	if err != nil {
		return "", false
	}
	return string(v), true
}

func listIDs(metas []calendar.Meta) []string {
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	return ids
}

// requireConsistent checks the index/body invariant.
func requireConsistent(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	report, err := f.repo.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.OK() {
		t.Fatalf("inconsistent store: %+v", report)
	}
	for _, m := range f.repo.List(ctx) {
		if _, err := f.repo.Get(ctx, m.ID); err != nil {
			t.Fatalf("listed id %s not retrievable: %v", m.ID, err)
		}
	}
}
