package safety_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matching/internal/db/dbtest"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/service/safety"
	"github.com/oggyb/muzz-matching/internal/service/servicetest"
)

func setup(t *testing.T) (*safety.Client, *servicetest.Env) {
	t.Helper()
	env := servicetest.New(t)
	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	for i, id := range []string{"alice", "bob", "carol"} {
		dbtest.Profile(t, env.DB, id, base.Add(time.Duration(i)*time.Minute))
	}
	conn := servicetest.Serve(t, safety.NewRegistrar(env.App))
	return safety.NewClient(conn), env
}

func TestBlock_SupersedesEverything(t *testing.T) {
	ctx := context.Background()
	client, env := setup(t)

	_, err := env.App.Ledger.RecordInterest(ctx, "bob", "alice", domain.KindLike)
	require.NoError(t, err)
	res, err := env.App.Ledger.RecordInterest(ctx, "alice", "bob", domain.KindLike)
	require.NoError(t, err)
	require.True(t, res.Matched)

	_, err = client.Block(ctx, &safety.BlockRequest{BlockerUserId: "bob", BlockedUserId: "alice"})
	require.NoError(t, err)

	// repeat is a no-op
	_, err = client.Block(ctx, &safety.BlockRequest{BlockerUserId: "bob", BlockedUserId: "alice"})
	require.NoError(t, err)

	matches, err := env.App.Registry.ListMatches(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = env.App.Chat.AppendMessage(ctx, res.Match.ID, "alice", "hello?")
	require.Error(t, err)

	// blocked users cannot express interest either way
	_, err = env.App.Ledger.RecordInterest(ctx, "alice", "carol", domain.KindLike)
	require.NoError(t, err)
	_, err = client.Block(ctx, &safety.BlockRequest{BlockerUserId: "carol", BlockedUserId: "alice"})
	require.NoError(t, err)
	_, err = env.App.Ledger.RecordInterest(ctx, "carol", "alice", domain.KindLike)
	assert.ErrorIs(t, err, svcErr.ErrAlreadyBlocked)
}

func TestBlock_Validation(t *testing.T) {
	ctx := context.Background()
	client, _ := setup(t)

	_, err := client.Block(ctx, &safety.BlockRequest{BlockerUserId: "alice"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Block(ctx, &safety.BlockRequest{BlockerUserId: "alice", BlockedUserId: "alice"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestReportLifecycle(t *testing.T) {
	ctx := context.Background()
	client, _ := setup(t)

	filed, err := client.Report(ctx, &safety.ReportRequest{
		ReporterUserId: "alice",
		TargetId:       "bob",
		TargetKind:     "user",
		Reason:         "  rude messages ",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", filed.Report.Status)
	assert.Equal(t, "rude messages", filed.Report.Reason)

	reviewed, err := client.AdvanceReport(ctx, &safety.AdvanceReportRequest{ReportId: filed.Report.ReportId, Status: "reviewed"})
	require.NoError(t, err)
	assert.Equal(t, "reviewed", reviewed.Report.Status)

	// forward only
	_, err = client.AdvanceReport(ctx, &safety.AdvanceReportRequest{ReportId: filed.Report.ReportId, Status: "pending"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.AdvanceReport(ctx, &safety.AdvanceReportRequest{ReportId: "missing", Status: "closed"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	list, err := client.ListReports(ctx, &safety.ListReportsRequest{TargetId: "bob"})
	require.NoError(t, err)
	require.Len(t, list.Reports, 1)
	assert.Equal(t, "reviewed", list.Reports[0].Status)
}

func TestReport_Validation(t *testing.T) {
	ctx := context.Background()
	client, _ := setup(t)

	cases := map[string]*safety.ReportRequest{
		"missing reason": {ReporterUserId: "alice", TargetId: "bob", TargetKind: "user"},
		"bad kind":       {ReporterUserId: "alice", TargetId: "bob", TargetKind: "profile", Reason: "x"},
		"self":           {ReporterUserId: "alice", TargetId: "alice", TargetKind: "user", Reason: "x"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := client.Report(ctx, req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}
