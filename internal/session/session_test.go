package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

func newTestRegistry(t *testing.T, options ...RegistryOption) *Registry {
	t.Helper()
	r := NewRegistry(options...)
	t.Cleanup(r.Close)
	return r
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t)

	profile := &types.ResumeProfile{Skills: []string{"Go"}}
	sess, err := r.Create(profile, "minio://resumes/x.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	got, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, profile, got.Profile)
	assert.Equal(t, "minio://resumes/x.pdf", got.ResumeURI)
}

func TestGetUnknownID(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Get("no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateStoresResults(t *testing.T) {
	r := newTestRegistry(t)

	sess, err := r.Create(&types.ResumeProfile{}, "")
	require.NoError(t, err)

	listings := []*types.JobListing{{ID: "a"}, {ID: "b"}}
	results := []types.MatchResult{{ListingID: "a", FinalScore: 91}}
	require.NoError(t, r.Update(sess.ID, func(s *Session) {
		s.Listings = listings
		s.Results = results
	}))

	got, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, results, got.Results)
	assert.Len(t, got.ListingByID(), 2)
	assert.Equal(t, "b", got.ListingByID()["b"].ID)

	assert.ErrorIs(t, r.Update("missing", func(*Session) {}), ErrSessionNotFound)
}

func TestDelete(t *testing.T) {
	r := newTestRegistry(t)

	sess, err := r.Create(&types.ResumeProfile{}, "")
	require.NoError(t, err)

	r.Delete(sess.ID)
	_, err = r.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Deleting again is a no-op.
	r.Delete(sess.ID)
}

func TestExpiredSessionIsGone(t *testing.T) {
	r := newTestRegistry(t, WithTTL(10*time.Millisecond), WithCleanupInterval(time.Hour))

	sess, err := r.Create(&types.ResumeProfile{}, "")
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	// Lazy expiry on access, even before the sweeper runs.
	_, err = r.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, r.Len())
}

func TestSweeperRemovesExpiredSessions(t *testing.T) {
	r := newTestRegistry(t, WithTTL(10*time.Millisecond), WithCleanupInterval(15*time.Millisecond))

	_, err := r.Create(&types.ResumeProfile{}, "")
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	assert.Eventually(t, func() bool {
		return r.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteCancelsInFlightRun(t *testing.T) {
	r := newTestRegistry(t)

	sess, err := r.Create(&types.ResumeProfile{}, "")
	require.NoError(t, err)

	ctx, cancel := sess.BeginRun(context.Background())
	defer cancel()

	r.Delete(sess.ID)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("run context must be canceled when the session is deleted")
	}
}

func TestBeginRunCancelsPreviousRun(t *testing.T) {
	r := newTestRegistry(t)

	sess, err := r.Create(&types.ResumeProfile{}, "")
	require.NoError(t, err)

	first, cancelFirst := sess.BeginRun(context.Background())
	defer cancelFirst()
	second, cancelSecond := sess.BeginRun(context.Background())
	defer cancelSecond()

	assert.Error(t, first.Err(), "starting a new run supersedes the previous one")
	assert.NoError(t, second.Err())
}

func TestGetRefreshesActivity(t *testing.T) {
	r := newTestRegistry(t, WithTTL(40*time.Millisecond), WithCleanupInterval(time.Hour))

	sess, err := r.Create(&types.ResumeProfile{}, "")
	require.NoError(t, err)

	// Keep touching the session past its original TTL.
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		_, err = r.Get(sess.ID)
		require.NoError(t, err)
	}
}
