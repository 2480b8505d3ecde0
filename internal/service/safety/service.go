package safety

import (
	"context"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	safetygate "github.com/oggyb/muzz-matching/internal/safety"
	"github.com/oggyb/muzz-matching/internal/validation"
)

// Service implements the Safety gRPC API. Blocks take effect at once
// everywhere; reports only queue work for reviewers.
type Service struct {
	appCtx *app.AppContext
}

func NewSafetyService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

var _ SafetyServer = (*Service)(nil)

// Block hides the two users from each other for good.
//
// Behavior:
//   - Either direction of a block excludes the pair from feeds, "who
//     liked you", match lists and conversations.
//   - An existing match is left in place but can no longer be used.
//   - Repeating a block is a no-op.
//
// Example:
//
//	svc.Block(ctx, &BlockRequest{BlockerUserId: "alice", BlockedUserId: "bob"})
func (s *Service) Block(ctx context.Context, req *BlockRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("Block called", "blocker", req.BlockerUserId, "blocked", req.BlockedUserId)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Gate.Block(ctx, req.BlockerUserId, req.BlockedUserId); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

// Report files a pending report against a user, photo or message.
func (s *Service) Report(ctx context.Context, req *ReportRequest) (*ReportResponse, error) {
	s.appCtx.Logger.Debug("Report called", "reporter", req.ReporterUserId, "target", req.TargetId, "kind", req.TargetKind)

	rep, err := s.appCtx.Gate.Report(ctx, safetygate.ReportInput{
		ReporterID: req.ReporterUserId,
		TargetID:   req.TargetId,
		TargetKind: domain.ReportTargetKind(req.TargetKind),
		Reason:     req.Reason,
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &ReportResponse{Report: toReport(rep)}, nil
}

// AdvanceReport moves a report forward: pending, reviewed, closed.
func (s *Service) AdvanceReport(ctx context.Context, req *AdvanceReportRequest) (*ReportResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	rep, err := s.appCtx.Gate.AdvanceReport(ctx, req.ReportId, domain.ReportStatus(req.Status))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &ReportResponse{Report: toReport(rep)}, nil
}

func (s *Service) ListReports(ctx context.Context, req *ListReportsRequest) (*ListReportsResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	reps, err := s.appCtx.Gate.ReportsAgainst(ctx, req.TargetId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &ListReportsResponse{Reports: make([]Report, 0, len(reps))}
	for i := range reps {
		resp.Reports = append(resp.Reports, toReport(&reps[i]))
	}
	return resp, nil
}

func toReport(r *db.Report) Report {
	return Report{
		ReportId:   r.ID,
		ReporterId: r.ReporterID,
		TargetId:   r.TargetID,
		TargetKind: r.TargetKind,
		Reason:     r.Reason,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
