package rsvp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Phatcm/event-management-system/internal/models"
	"github.com/Phatcm/event-management-system/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ReservationStore. A single mutex around the
// whole transaction gives the same isolation the postgres implementation
// gets from its row lock, so the service's check sequence can be exercised
// under real goroutine concurrency.
type memStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]models.Event
	rsvps  map[uuid.UUID]models.RSVP
}

func newMemStore() *memStore {
	return &memStore{
		events: make(map[uuid.UUID]models.Event),
		rsvps:  make(map[uuid.UUID]models.RSVP),
	}
}

func (m *memStore) addEvent(capacity int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid := uuid.New()
	m.events[uid] = models.Event{UID: uid, Title: "event", Capacity: capacity}
	return uid
}

func (m *memStore) addRSVP(eventUID, userUID uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid := uuid.New()
	m.rsvps[uid] = models.RSVP{UID: uid, EventUID: eventUID, UserUID: userUID, RSVPDate: time.Now()}
	return uid
}

func (m *memStore) countForEvent(eventUID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.rsvps {
		if r.EventUID == eventUID {
			n++
		}
	}
	return n
}

func (m *memStore) InAdmissionTx(ctx context.Context, fn func(tx storage.AdmissionTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return fn(&memTx{s: m})
}

func (m *memStore) RSVPsByUser(ctx context.Context, userUID uuid.UUID) ([]models.RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.RSVP
	for _, r := range m.rsvps {
		if r.UserUID == userUID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) RSVPByUID(ctx context.Context, uid uuid.UUID) (models.RSVP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rsvps[uid]
	if !ok {
		return models.RSVP{}, storage.ErrRSVPNotFound
	}
	return r, nil
}

func (m *memStore) DeleteRSVP(ctx context.Context, uid uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rsvps[uid]; !ok {
		return storage.ErrRSVPNotFound
	}
	delete(m.rsvps, uid)
	return nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) HasRSVP(ctx context.Context, eventUID, userUID uuid.UUID) (bool, error) {
	for _, r := range t.s.rsvps {
		if r.EventUID == eventUID && r.UserUID == userUID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) EventForUpdate(ctx context.Context, eventUID uuid.UUID) (models.Event, error) {
	e, ok := t.s.events[eventUID]
	if !ok {
		return models.Event{}, storage.ErrEventNotFound
	}
	return e, nil
}

func (t *memTx) LiveRSVPCount(ctx context.Context, eventUID uuid.UUID) (int, error) {
	n := 0
	for _, r := range t.s.rsvps {
		if r.EventUID == eventUID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertRSVP(ctx context.Context, rsvp *models.RSVP) error {
	for _, r := range t.s.rsvps {
		if r.EventUID == rsvp.EventUID && r.UserUID == rsvp.UserUID {
			return storage.ErrAlreadyReserved
		}
	}
	t.s.rsvps[rsvp.UID] = *rsvp
	return nil
}

func newTestService(store *memStore) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log, store)
}

func TestReserve_Succeeds(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventUID := store.addEvent(10)
	userUID := uuid.New()

	got, err := svc.Reserve(context.Background(), eventUID, userUID)
	require.NoError(t, err)
	assert.Equal(t, eventUID, got.EventUID)
	assert.Equal(t, userUID, got.UserUID)
	assert.NotEqual(t, uuid.Nil, got.UID)
	assert.Equal(t, 1, store.countForEvent(eventUID))
}

func TestReserve_DuplicateFails(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventUID := store.addEvent(10)
	userUID := uuid.New()

	_, err := svc.Reserve(context.Background(), eventUID, userUID)
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), eventUID, userUID)
	require.ErrorIs(t, err, storage.ErrAlreadyReserved)
	assert.Equal(t, 1, store.countForEvent(eventUID))
}

func TestReserve_UnknownEvent(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMemStore())

	_, err := svc.Reserve(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, storage.ErrEventNotFound)
}

func TestReserve_EventFull(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventUID := store.addEvent(1)

	_, err := svc.Reserve(context.Background(), eventUID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Reserve(context.Background(), eventUID, uuid.New())
	require.ErrorIs(t, err, storage.ErrEventFull)
}

// The check order is a contract: a duplicate outranks a full event, and it
// even outranks an event the store no longer knows about.
func TestReserve_DuplicateTakesPrecedenceOverFull(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventUID := store.addEvent(1)
	userUID := uuid.New()
	store.addRSVP(eventUID, userUID)

	_, err := svc.Reserve(context.Background(), eventUID, userUID)
	require.ErrorIs(t, err, storage.ErrAlreadyReserved)
}

func TestReserve_DuplicateTakesPrecedenceOverNotFound(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	// the rsvp references an event uid the store has no event row for
	ghostEvent := uuid.New()
	userUID := uuid.New()
	store.addRSVP(ghostEvent, userUID)

	_, err := svc.Reserve(context.Background(), ghostEvent, userUID)
	require.ErrorIs(t, err, storage.ErrAlreadyReserved)
}

func TestReserve_ZeroCapacity(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventUID := store.addEvent(0)

	_, err := svc.Reserve(context.Background(), eventUID, uuid.New())
	require.ErrorIs(t, err, storage.ErrEventFull)
}

func TestCancel_ThenReserveSucceeds(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventUID := store.addEvent(1)
	user := models.User{UID: uuid.New(), Role: models.RoleUser}

	first, err := svc.Reserve(context.Background(), eventUID, user.UID)
	require.NoError(t, err)

	canceled, err := svc.Cancel(context.Background(), first.UID, user)
	require.NoError(t, err)
	assert.Equal(t, first.UID, canceled.UID)

	// cancellation fully frees the slot and clears the duplicate guard
	_, err = svc.Reserve(context.Background(), eventUID, user.UID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.countForEvent(eventUID))
}

func TestCancel_NotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMemStore())

	_, err := svc.Cancel(context.Background(), uuid.New(), models.User{UID: uuid.New(), Role: models.RoleUser})
	require.ErrorIs(t, err, storage.ErrRSVPNotFound)
}

func TestCancel_OnlyOwnerOrAdmin(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventUID := store.addEvent(5)
	owner := models.User{UID: uuid.New(), Role: models.RoleUser}
	stranger := models.User{UID: uuid.New(), Role: models.RoleUser}
	admin := models.User{UID: uuid.New(), Role: models.RoleAdmin}

	reservation, err := svc.Reserve(context.Background(), eventUID, owner.UID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), reservation.UID, stranger)
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, 1, store.countForEvent(eventUID))

	_, err = svc.Cancel(context.Background(), reservation.UID, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, store.countForEvent(eventUID))
}

func TestListByUser(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)

	eventA := store.addEvent(5)
	eventB := store.addEvent(5)
	userUID := uuid.New()

	_, err := svc.Reserve(context.Background(), eventA, userUID)
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), eventB, userUID)
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), eventA, uuid.New())
	require.NoError(t, err)

	rsvps, err := svc.ListByUser(context.Background(), userUID)
	require.NoError(t, err)
	assert.Len(t, rsvps, 2)
}

// 100 goroutines race for 5 spots: exactly 5 win, the rest are told the
// event is full, and the store never holds more rsvps than capacity.
func TestReserve_ConcurrentNeverOvershootsCapacity(t *testing.T) {
	t.Parallel()

	const (
		capacity   = 5
		contenders = 100
	)

	store := newMemStore()
	svc := newTestService(store)
	eventUID := store.addEvent(capacity)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		fulls     int
		others    []error
	)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := svc.Reserve(context.Background(), eventUID, uuid.New())

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, storage.ErrEventFull):
				fulls++
			default:
				others = append(others, err)
			}
		}()
	}

	wg.Wait()

	require.Empty(t, others, "unexpected errors: %v", others)
	assert.Equal(t, capacity, successes)
	assert.Equal(t, contenders-capacity, fulls)
	assert.Equal(t, capacity, store.countForEvent(eventUID))
}

// Two users race for the last spot: exactly one wins.
func TestReserve_ConcurrentCapacityOne(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)
	eventUID := store.addEvent(1)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Reserve(context.Background(), eventUID, uuid.New())
			results <- err
		}()
	}

	first, second := <-results, <-results

	if first == nil {
		require.ErrorIs(t, second, storage.ErrEventFull)
	} else {
		require.ErrorIs(t, first, storage.ErrEventFull)
		require.NoError(t, second)
	}
	assert.Equal(t, 1, store.countForEvent(eventUID))
}

// The same user racing against themselves must end up with one rsvp.
func TestReserve_ConcurrentSamePair(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := newTestService(store)
	eventUID := store.addEvent(10)
	userUID := uuid.New()

	const attempts = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := svc.Reserve(context.Background(), eventUID, userUID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes, "expected exactly one live rsvp for the pair")
	assert.Equal(t, 1, store.countForEvent(eventUID))
}
