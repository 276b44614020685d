package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"provider-dispatch/internal/domain"
)

// fakeSessionRepo is an in-memory SessionRepository with the same atomicity
// guarantees as the real store: conditional transitions are applied under a
// single mutex, so concurrent TryAccept calls serialize exactly once.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	declines map[string]map[string]bool

	failList bool
	failMark bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*domain.Session),
		declines: make(map[string]map[string]bool),
	}
}

func (r *fakeSessionRepo) add(s *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.ID] = &copied
}

func (r *fakeSessionRepo) get(id string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		copied := *s
		return &copied
	}
	return nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.add(s)
	return nil
}

func (r *fakeSessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	if s := r.get(id); s != nil {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (r *fakeSessionRepo) ListPendingDispatch(ctx context.Context, limit int) ([]*domain.Session, error) {
	if r.failList {
		return nil, fmt.Errorf("store unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.EligibleForDispatch() {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSessionRepo) ListOpenSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.EligibleForAcceptance() {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSessionRepo) MarkDispatched(ctx context.Context, id string, candidateCount int) error {
	if r.failMark {
		return fmt.Errorf("store unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.DispatchState != domain.DispatchStatePending {
		return fmt.Errorf("session %s is not pending dispatch", id)
	}
	now := time.Now()
	s.DispatchState = domain.DispatchStateDispatched
	s.CandidateCount = candidateCount
	s.DispatchedAt = &now
	return nil
}

func (r *fakeSessionRepo) TryAccept(ctx context.Context, id, responder string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, nil
	}
	if !s.EligibleForAcceptance() {
		return false, nil
	}
	s.ResolutionState = domain.ResolutionStateAccepted
	s.AcceptedBy = &responder
	return true, nil
}

func (r *fakeSessionRepo) RecordDecline(ctx context.Context, id, responder string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if r.declines[id] == nil {
		r.declines[id] = make(map[string]bool)
	}
	r.declines[id][responder] = true
	if s.ResolutionState == domain.ResolutionStateOpen &&
		s.CandidateCount > 0 && len(r.declines[id]) >= s.CandidateCount {
		s.ResolutionState = domain.ResolutionStateDeclinedAll
		return true, nil
	}
	return false, nil
}

// fakeResolver returns a fixed candidate set per (category, location) pair.
type fakeResolver struct {
	mu         sync.Mutex
	candidates map[string][]domain.Provider
	err        error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{candidates: make(map[string][]domain.Provider)}
}

func resolverKey(categoryID, locationID int64) string {
	return fmt.Sprintf("%d/%d", categoryID, locationID)
}

func (f *fakeResolver) set(categoryID, locationID int64, providers ...domain.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates[resolverKey(categoryID, locationID)] = providers
}

func (f *fakeResolver) Resolve(ctx context.Context, categoryID, locationID int64) ([]domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates[resolverKey(categoryID, locationID)], nil
}

// fakeNotifier records sends; addresses in failFor error out.
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

type sentMessage struct {
	to  string
	msg domain.Message
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: make(map[string]bool)}
}

func (f *fakeNotifier) Send(ctx context.Context, address string, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[address] {
		return fmt.Errorf("delivery to %s failed", address)
	}
	f.sent = append(f.sent, sentMessage{to: address, msg: msg})
	return nil
}

func (f *fakeNotifier) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.to)
	}
	return out
}

// fakeLocker hands out the lock unless held is set.
type fakeLocker struct {
	mu    sync.Mutex
	held  bool
	locks int
}

type fakeLock struct{}

func (fakeLock) Unlock(ctx context.Context) error { return nil }

func (f *fakeLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return nil, domain.ErrLockNotAcquired
	}
	f.locks++
	return fakeLock{}, nil
}
