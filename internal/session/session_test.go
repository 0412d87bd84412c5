package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
)

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.SessionState
	upserts  int
	getErr   error
	cleaned  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: map[string]*domain.SessionState{}}
}

func (r *fakeRepo) GetSession(_ context.Context, id string) (*domain.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) UpsertSession(_ context.Context, s *domain.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *fakeRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeRepo) CleanupExpiredSessions(_ context.Context, ttl time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	var n int64
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	r.cleaned += n
	return n, nil
}

func (r *fakeRepo) ListSessionIDs(context.Context, int) ([]string, error) { return nil, nil }
func (r *fakeRepo) Ping(context.Context) error                            { return nil }
func (r *fakeRepo) Close() error                                          { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testChart() *domain.Chart {
	return &domain.Chart{KeyPositions: domain.KeyPositions{Sun: domain.Position{Sign: "Capricorn"}}}
}

func TestGetOrCreateComputesOnce(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	m := NewManager(repo, time.Hour, discardLogger())
	var calls atomic.Int32
	onMiss := func(context.Context) (*domain.Chart, error) {
		calls.Add(1)
		return testChart(), nil
	}

	first, err := m.GetOrCreate(context.Background(), "s1", &domain.UserProfile{Name: "A"}, onMiss)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := m.GetOrCreate(context.Background(), "s1", nil, onMiss)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if calls.Load() != 1 {
		t.Fatalf("onMiss called %d times, want 1", calls.Load())
	}
	if first != second {
		t.Fatal("GetOrCreate returned different chart values")
	}

	state, err := m.Load(context.Background(), "s1")
	if err != nil || state == nil {
		t.Fatalf("Load() = %v, %v; want persisted state", state, err)
	}
	if state.Chart == nil || state.Profile == nil || state.Profile.Name != "A" {
		t.Fatalf("persisted state = %+v, want profile and chart", state)
	}
}

func TestGetOrCreateConcurrentFirstTurns(t *testing.T) {
	t.Parallel()

	m := NewManager(newFakeRepo(), time.Hour, discardLogger())
	var calls atomic.Int32
	release := make(chan struct{})
	onMiss := func(context.Context) (*domain.Chart, error) {
		calls.Add(1)
		<-release
		return testChart(), nil
	}

	const n = 8
	results := make([]*domain.Chart, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.GetOrCreate(context.Background(), "shared", nil, onMiss)
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			results[i] = c
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("onMiss called %d times, want 1", calls.Load())
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
}

func TestGetOrCreateUsesStoredChart(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	stored := domain.NewSessionState("s1", nil)
	stored.AttachChart(testChart())
	repo.sessions["s1"] = stored

	m := NewManager(repo, time.Hour, discardLogger())
	c, err := m.GetOrCreate(context.Background(), "s1", nil, func(context.Context) (*domain.Chart, error) {
		t.Fatal("onMiss must not be called for a stored chart")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if c.KeyPositions.Sun.Sign != "Capricorn" {
		t.Fatalf("sun sign = %q, want Capricorn", c.KeyPositions.Sun.Sign)
	}
}

func TestGetOrCreateFailureIsInputErrorAndNotPersisted(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	m := NewManager(repo, time.Hour, discardLogger())

	_, err := m.GetOrCreate(context.Background(), "s1", nil, func(context.Context) (*domain.Chart, error) {
		return nil, domain.ErrChartUnavailable
	})
	if !domain.IsInputError(err) {
		t.Fatalf("error = %v, want InputError", err)
	}
	if !errors.Is(err, domain.ErrChartUnavailable) {
		t.Fatalf("error = %v, want cause preserved", err)
	}
	if repo.upserts != 0 {
		t.Fatalf("upserts = %d, want 0", repo.upserts)
	}

	// A later successful call still computes.
	if _, err := m.GetOrCreate(context.Background(), "s1", nil, func(context.Context) (*domain.Chart, error) {
		return testChart(), nil
	}); err != nil {
		t.Fatalf("GetOrCreate() retry error = %v", err)
	}
}

func TestGetOrCreateStoreReadFailureKeepsState(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	stored := domain.NewSessionState("s1", &domain.UserProfile{Name: "A"})
	stored.AttachChart(testChart())
	stored.Append(domain.RoleUser, "When will I marry?")
	stored.Append(domain.RoleAssistant, "Venus dasa favours it.")
	repo.sessions["s1"] = stored
	repo.getErr = errors.New("database is locked")

	m := NewManager(repo, time.Hour, discardLogger())
	var calls atomic.Int32
	_, err := m.GetOrCreate(context.Background(), "s1", nil, func(context.Context) (*domain.Chart, error) {
		calls.Add(1)
		return testChart(), nil
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("GetOrCreate() error = %v, want ErrStoreUnavailable", err)
	}
	if domain.IsInputError(err) {
		t.Fatalf("GetOrCreate() error = %v, must not be an InputError", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("onMiss called %d times, want 0", calls.Load())
	}

	if _, err := m.Load(context.Background(), "s1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("Load() error = %v, want ErrStoreUnavailable", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.upserts != 0 {
		t.Fatalf("upserts = %d, want 0", repo.upserts)
	}
	if got := len(repo.sessions["s1"].Messages); got != 2 {
		t.Fatalf("stored messages = %d, want 2", got)
	}
}

func TestGetOrCreateCancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	m := NewManager(newFakeRepo(), time.Hour, discardLogger())
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	onMiss := func(ctx context.Context) (*domain.Chart, error) {
		calls.Add(1)
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return testChart(), nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.GetOrCreate(firstCtx, "shared", nil, onMiss)
		firstErr <- err
	}()
	<-started

	type result struct {
		c   *domain.Chart
		err error
	}
	second := make(chan result, 1)
	go func() {
		c, err := m.GetOrCreate(context.Background(), "shared", nil, onMiss)
		second <- result{c, err}
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller error = %v, want context.Canceled", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("second caller error = %v", got.err)
	}
	if got.c == nil || got.c.KeyPositions.Sun.Sign != "Capricorn" {
		t.Fatalf("second caller chart = %+v", got.c)
	}
	if calls.Load() != 1 {
		t.Fatalf("onMiss called %d times, want 1", calls.Load())
	}
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	old := domain.NewSessionState("old", nil)
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	repo.sessions["old"] = old
	repo.sessions["fresh"] = domain.NewSessionState("fresh", nil)

	m := NewManager(repo, time.Hour, discardLogger())
	if got := m.Sweep(context.Background(), 24*time.Hour); got != 1 {
		t.Fatalf("Sweep() = %d, want 1", got)
	}
	if _, ok := repo.sessions["fresh"]; !ok {
		t.Fatal("fresh session removed")
	}
}

func TestStartSweeperStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	old := domain.NewSessionState("old", nil)
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	repo.sessions["old"] = old

	m := NewManager(repo, time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	m.StartSweeper(ctx, 5*time.Millisecond, 24*time.Hour)

	deadline := time.After(time.Second)
	for {
		repo.mu.Lock()
		cleaned := repo.cleaned
		repo.mu.Unlock()
		if cleaned == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper did not clean expired session")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
}
