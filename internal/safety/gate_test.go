package safety_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/db/dbtest"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/repository"
	"github.com/oggyb/muzz-matching/internal/safety"
	"github.com/oggyb/muzz-matching/internal/stream"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []stream.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev stream.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type recordingInvalidator struct {
	users []string
}

func (r *recordingInvalidator) InvalidateReceivedCount(_ context.Context, ids ...string) error {
	r.users = append(r.users, ids...)
	return nil
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*safety.Gate, *repository.Repositories) {
	t.Helper()
	repos := repository.New(dbtest.Open(t))
	return safety.NewGate(repos, clock.NewManual(t0), logger.Discard()), repos
}

func TestBlock_BothDirections(t *testing.T) {
	ctx := context.Background()
	gate, _ := setup(t)

	require.NoError(t, gate.Block(ctx, "alice", "bob"))

	blocked, err := gate.IsBlocked(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = gate.IsBlocked(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = gate.IsBlocked(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.False(t, blocked)

	with, err := gate.BlockedWith(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, with)
}

func TestBlock_Idempotent(t *testing.T) {
	ctx := context.Background()
	gate, _ := setup(t)
	inv := &recordingInvalidator{}
	gate.WithCounts(inv)

	require.NoError(t, gate.Block(ctx, "alice", "bob"))
	require.NoError(t, gate.Block(ctx, "alice", "bob"))

	// only the first block changes anything
	assert.Equal(t, []string{"alice", "bob"}, inv.users)
}

func TestBlock_Validation(t *testing.T) {
	ctx := context.Background()
	gate, _ := setup(t)

	err := gate.Block(ctx, "alice", "alice")
	assert.True(t, errors.Is(err, svcErr.ErrValidation))

	err = gate.Block(ctx, "", "bob")
	assert.True(t, errors.Is(err, svcErr.ErrValidation))
}

func TestBlock_NotifiesMatchedPair(t *testing.T) {
	ctx := context.Background()
	gate, repos := setup(t)
	pub := &recordingPublisher{}
	gate.WithEvents(pub)

	m, err := repos.Matches.Create(ctx, domain.NewPair("alice", "bob"), domain.KindLike, t0)
	require.NoError(t, err)

	require.NoError(t, gate.Block(ctx, "bob", "alice"))
	require.NoError(t, gate.Block(ctx, "alice", "carol"))

	require.Len(t, pub.events, 1)
	assert.Equal(t, stream.SafetyChanged, pub.events[0].Type)
	assert.Equal(t, m.ID, pub.events[0].MatchID)
	assert.Equal(t, "bob", pub.events[0].ActorID)

	// the match row itself is untouched
	got, err := repos.Matches.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	gate, _ := setup(t)

	rep, err := gate.Report(ctx, safety.ReportInput{
		ReporterID: "alice",
		TargetID:   "msg-1",
		TargetKind: domain.TargetMessage,
		Reason:     "  spam  ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, string(domain.ReportPending), rep.Status)
	assert.Equal(t, "spam", rep.Reason)

	reps, err := gate.ReportsAgainst(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, reps, 1)
	assert.Equal(t, rep.ID, reps[0].ID)
}

func TestReport_Validation(t *testing.T) {
	ctx := context.Background()
	gate, _ := setup(t)

	cases := []struct {
		name string
		in   safety.ReportInput
	}{
		{"missing reason", safety.ReportInput{ReporterID: "a", TargetID: "b", TargetKind: domain.TargetUser, Reason: "   "}},
		{"unknown kind", safety.ReportInput{ReporterID: "a", TargetID: "b", TargetKind: "video", Reason: "x"}},
		{"self report", safety.ReportInput{ReporterID: "a", TargetID: "a", TargetKind: domain.TargetUser, Reason: "x"}},
		{"missing reporter", safety.ReportInput{TargetID: "b", TargetKind: domain.TargetUser, Reason: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gate.Report(ctx, tc.in)
			assert.True(t, errors.Is(err, svcErr.ErrValidation), "got %v", err)
		})
	}
}

func TestAdvanceReport_ForwardOnly(t *testing.T) {
	ctx := context.Background()
	gate, _ := setup(t)

	rep, err := gate.Report(ctx, safety.ReportInput{ReporterID: "a", TargetID: "b", TargetKind: domain.TargetUser, Reason: "rude"})
	require.NoError(t, err)

	rep, err = gate.AdvanceReport(ctx, rep.ID, domain.ReportReviewed)
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReportReviewed), rep.Status)

	// same status is a no-op
	rep, err = gate.AdvanceReport(ctx, rep.ID, domain.ReportReviewed)
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReportReviewed), rep.Status)

	_, err = gate.AdvanceReport(ctx, rep.ID, domain.ReportPending)
	assert.True(t, errors.Is(err, svcErr.ErrValidation))

	rep, err = gate.AdvanceReport(ctx, rep.ID, domain.ReportClosed)
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReportClosed), rep.Status)

	_, err = gate.AdvanceReport(ctx, "nope", domain.ReportClosed)
	assert.True(t, errors.Is(err, svcErr.ErrNotFound))
}
