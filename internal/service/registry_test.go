package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/psds-microservice/call-service/internal/errs"
	"github.com/psds-microservice/call-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore records persistence calls; failSave makes Save fail.
type fakeStore struct {
	mu       sync.Mutex
	saved    []model.Session
	updates  []string
	deleted  int
	failSave error
}

func (f *fakeStore) Save(sess *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return f.failSave
	}
	f.saved = append(f.saved, *sess)
	return nil
}

func (f *fakeStore) UpdateStatus(sessionID string, status model.CallStatus, endedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, sessionID+":"+string(status))
	return nil
}

func (f *fakeStore) DeleteEndedBefore(cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return 0, nil
}

func newTestRegistry(t *testing.T) (*SessionRegistry, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	return NewSessionRegistry(store, zap.NewNop()), store
}

func TestRegistryCreate(t *testing.T) {
	reg, store := newTestRegistry(t)

	sess, err := reg.Create("", "alice", "bob", model.CallKindVideo)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, model.CallStatusRinging, sess.Status)
	assert.Equal(t, "alice", sess.CallerID)
	assert.Equal(t, "bob", sess.CalleeID)
	assert.Nil(t, sess.EndedAt)
	assert.Len(t, store.saved, 1)

	got, err := reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestRegistryCreateValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Create("", "alice", "alice", model.CallKindAudio)
	assert.ErrorIs(t, err, errs.ErrSelfCall)

	_, err = reg.Create("", "alice", "bob", model.CallKind("screen"))
	assert.ErrorIs(t, err, errs.ErrInvalidKind)
}

func TestRegistryCreatePairBusy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Create("", "alice", "bob", model.CallKindAudio)
	require.NoError(t, err)

	// Same pair in either direction is busy while the first call is active.
	_, err = reg.Create("", "alice", "bob", model.CallKindAudio)
	assert.ErrorIs(t, err, errs.ErrAlreadyInCall)
	_, err = reg.Create("", "bob", "alice", model.CallKindVideo)
	assert.ErrorIs(t, err, errs.ErrAlreadyInCall)

	// A different pair proceeds independently.
	_, err = reg.Create("", "alice", "carol", model.CallKindAudio)
	assert.NoError(t, err)
}

func TestRegistryPairReleasedAfterEnd(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sess, err := reg.Create("", "alice", "bob", model.CallKindAudio)
	require.NoError(t, err)
	require.NoError(t, reg.Transition(sess.ID, "bob", model.CallStatusEnded))

	next, err := reg.Create("", "bob", "alice", model.CallKindAudio)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, next.ID)
}

func TestRegistrySessionIDNeverReused(t *testing.T) {
	reg, _ := newTestRegistry(t)

	sess, err := reg.Create("s-1", "alice", "bob", model.CallKindAudio)
	require.NoError(t, err)
	require.Equal(t, "s-1", sess.ID)
	require.NoError(t, reg.Transition(sess.ID, "alice", model.CallStatusEnded))

	// Even after the first call ended, the id stays burned.
	_, err = reg.Create("s-1", "alice", "bob", model.CallKindAudio)
	assert.ErrorIs(t, err, errs.ErrSessionIDReused)
}

func TestRegistryCreateRollsBackOnStoreFailure(t *testing.T) {
	reg, store := newTestRegistry(t)
	store.failSave = errors.New("db down")

	_, err := reg.Create("", "alice", "bob", model.CallKindAudio)
	require.Error(t, err)

	// The pair must not stay blocked by the failed create.
	store.failSave = nil
	_, err = reg.Create("", "alice", "bob", model.CallKindAudio)
	assert.NoError(t, err)
}

func TestRegistryTransitionGuards(t *testing.T) {
	reg, _ := newTestRegistry(t)
	sess, err := reg.Create("", "alice", "bob", model.CallKindVideo)
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Transition("nope", "alice", model.CallStatusEnded), errs.ErrUnknownSession)
	assert.ErrorIs(t, reg.Transition(sess.ID, "mallory", model.CallStatusEnded), errs.ErrNotParticipant)
	assert.ErrorIs(t, reg.Transition(sess.ID, "alice", model.CallStatusConnected), errs.ErrInvalidTransition)

	// A rejected transition leaves the status unchanged.
	got, err := reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusRinging, got.Status)

	require.NoError(t, reg.Transition(sess.ID, "bob", model.CallStatusAccepted))
	require.NoError(t, reg.Transition(sess.ID, "alice", model.CallStatusConnected))
	require.NoError(t, reg.Transition(sess.ID, "alice", model.CallStatusEnded))

	got, err = reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusEnded, got.Status)
	require.NotNil(t, got.EndedAt)

	// Terminal means terminal.
	assert.ErrorIs(t, reg.Transition(sess.ID, "alice", model.CallStatusEnded), errs.ErrInvalidTransition)
}

func TestRegistryDoubleAnswerRace(t *testing.T) {
	reg, _ := newTestRegistry(t)
	sess, err := reg.Create("", "alice", "bob", model.CallKindAudio)
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- reg.Transition(sess.ID, "bob", model.CallStatusAccepted)
		}()
	}
	wg.Wait()
	close(results)

	var ok, invalid int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrInvalidTransition):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one answer wins")
	assert.Equal(t, 1, invalid, "the loser gets InvalidTransition")
}

func TestRegistrySimultaneousCrossCreate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := reg.Create("", "alice", "bob", model.CallKindAudio)
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := reg.Create("", "bob", "alice", model.CallKindAudio)
		results <- err
	}()
	wg.Wait()
	close(results)

	var ok, busy int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrAlreadyInCall):
			busy++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, busy)
}

func TestRegistrySweep(t *testing.T) {
	reg, store := newTestRegistry(t)

	ended, err := reg.Create("", "alice", "bob", model.CallKindAudio)
	require.NoError(t, err)
	require.NoError(t, reg.Transition(ended.ID, "alice", model.CallStatusEnded))

	ringing, err := reg.Create("", "carol", "dave", model.CallKindVideo)
	require.NoError(t, err)

	// A generous grace period keeps the ended session around.
	assert.Equal(t, 0, reg.Sweep(time.Hour))
	_, err = reg.Get(ended.ID)
	assert.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, reg.Sweep(0))
	_, err = reg.Get(ended.ID)
	assert.ErrorIs(t, err, errs.ErrUnknownSession)

	// Non-terminal sessions are never reaped regardless of age.
	_, err = reg.Get(ringing.ID)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, store.deleted, 1)
}

func TestRegistryWarm(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.Warm([]*model.Session{
		{ID: "w-1", CallerID: "alice", CalleeID: "bob", Kind: model.CallKindVideo, Status: model.CallStatusAccepted, CreatedAt: time.Now()},
	})

	got, err := reg.Get("w-1")
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusAccepted, got.Status)

	// The warmed pair is held as active.
	_, err = reg.Create("", "bob", "alice", model.CallKindAudio)
	assert.ErrorIs(t, err, errs.ErrAlreadyInCall)
}
