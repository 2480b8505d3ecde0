package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/db/dbtest"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestInterestPut_UpgradesNeverDowngrades(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))

	in, changed, err := repos.Interests.Put(ctx, "alice", "bob", domain.KindLike, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "like", in.Kind)

	// same kind again is a no-op
	_, changed, err = repos.Interests.Put(ctx, "alice", "bob", domain.KindLike, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	in, changed, err = repos.Interests.Put(ctx, "alice", "bob", domain.KindSuperLike, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "super_like", in.Kind)

	in, changed, err = repos.Interests.Put(ctx, "alice", "bob", domain.KindLike, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "super_like", in.Kind)
}

func TestInterestDeletePending_SkipsConsumed(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))

	_, _, err := repos.Interests.Put(ctx, "alice", "bob", domain.KindLike, t0)
	require.NoError(t, err)
	_, _, err = repos.Interests.Put(ctx, "bob", "alice", domain.KindLike, t0)
	require.NoError(t, err)
	require.NoError(t, repos.Interests.ConsumePair(ctx, domain.NewPair("alice", "bob"), t0))

	removed, err := repos.Interests.DeletePending(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, removed)

	in, err := repos.Interests.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, db.InterestConsumed, in.Status)
}

func TestListReceived_PaginationAndExclusions(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))

	// carol, dave, erin and frank liked target, one minute apart
	for i, from := range []string{"carol", "dave", "erin", "frank"} {
		_, _, err := repos.Interests.Put(ctx, from, "target", domain.KindLike, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	// target blocked dave and passed on erin until later
	_, err := repos.Safety.Block(ctx, "target", "dave", t0)
	require.NoError(t, err)
	expires := t0.Add(time.Hour)
	require.NoError(t, repos.Passes.Put(ctx, "target", "erin", t0, &expires))

	now := t0.Add(10 * time.Minute)
	count, err := repos.Interests.CountReceived(ctx, "target", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	page, next, err := repos.Interests.ListReceived(ctx, "target", nil, 1, now)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "frank", page[0].FromID)
	require.NotNil(t, next)

	page, next, err = repos.Interests.ListReceived(ctx, "target", next, 1, now)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "carol", page[0].FromID)
	assert.Nil(t, next)

	// expired pass no longer hides erin
	later := t0.Add(2 * time.Hour)
	count, err = repos.Interests.CountReceived(ctx, "target", later)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestListReceived_BadToken(t *testing.T) {
	repos := repository.New(dbtest.Open(t))
	bad := "%%%"
	_, _, err := repos.Interests.ListReceived(context.Background(), "target", &bad, 10, t0)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestAllocateSeq(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))

	m, err := repos.Matches.Create(ctx, domain.NewPair("alice", "bob"), domain.KindLike, t0)
	require.NoError(t, err)
	require.NoError(t, repos.Conversations.Create(ctx, m.ID, t0))

	for want := uint64(1); want <= 3; want++ {
		seq, err := repos.Conversations.AllocateSeq(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}

	_, err = repos.Conversations.AllocateSeq(ctx, "missing")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestMatchDeactivate_Once(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))

	m, err := repos.Matches.Create(ctx, domain.NewPair("bob", "alice"), domain.KindSuperLike, t0)
	require.NoError(t, err)
	assert.Equal(t, "alice", m.UserLow)

	changed, err := repos.Matches.Deactivate(ctx, m.ID, "bob", t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repos.Matches.Deactivate(ctx, m.ID, "alice", t0)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repos.Matches.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "bob", got.UnmatchedBy)

	// inactive matches still count as counterparts
	ids, err := repos.Matches.CounterpartsOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids)
}

func TestSetReportStatus_CompareAndSet(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))

	rep := &db.Report{ReporterID: "alice", TargetID: "bob", TargetKind: "user", Reason: "spam", Status: string(domain.ReportPending)}
	require.NoError(t, repos.Safety.CreateReport(ctx, rep))

	ok, err := repos.Safety.SetReportStatus(ctx, rep.ID, domain.ReportPending, domain.ReportReviewed, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale expectation loses
	ok, err = repos.Safety.SetReportStatus(ctx, rep.ID, domain.ReportPending, domain.ReportClosed, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repos.Safety.GetReport(ctx, "nope")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestInPair_RollsBack(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t))
	boom := errors.New("boom")

	err := repos.InPair(ctx, domain.NewPair("alice", "bob"), func(tx *repository.Repositories) error {
		if _, _, err := tx.Interests.Put(ctx, "alice", "bob", domain.KindLike, t0); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	in, err := repos.Interests.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, in)
}

func TestIsContention(t *testing.T) {
	assert.True(t, repository.IsContention(&mysql.MySQLError{Number: 1213}))
	assert.True(t, repository.IsContention(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, repository.IsContention(&mysql.MySQLError{Number: 1146}))
	assert.False(t, repository.IsContention(errors.New("plain")))
	assert.False(t, repository.IsContention(nil))
}

func TestInTx_GivesUpAfterAttempts(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t)).WithTxAttempts(3)

	calls := 0
	err := repos.InTx(ctx, func(*repository.Repositories) error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, svcErr.ErrContention))
}

func TestInTx_RecoversFromContention(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t)).WithTxAttempts(3)

	calls := 0
	err := repos.InTx(ctx, func(tx *repository.Repositories) error {
		calls++
		if calls < 3 {
			return &mysql.MySQLError{Number: 1213}
		}
		_, _, err := tx.Interests.Put(ctx, "alice", "bob", domain.KindLike, t0)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	in, err := repos.Interests.Get(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotNil(t, in)
}

func TestInTx_OtherErrorsAreNotRetried(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(dbtest.Open(t)).WithTxAttempts(3)
	boom := errors.New("boom")

	calls := 0
	err := repos.InTx(ctx, func(*repository.Repositories) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestInTx_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repos := repository.New(dbtest.Open(t)).WithTxAttempts(3)

	calls := 0
	err := repos.InTx(ctx, func(*repository.Repositories) error {
		calls++
		cancel()
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.Is(err, svcErr.ErrContention))
}
