package explore

import (
	"context"
	"strings"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/validation"
)

// Service implements the Explore gRPC API: the candidate feed, interest
// signals, "who liked you" and the match list. Business rules live in
// the feed and matching packages; this layer validates, maps and logs.
type Service struct {
	appCtx *app.AppContext
}

// NewExploreService creates a new Explore service with dependencies from AppContext.
func NewExploreService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

var _ ExploreServer = (*Service)(nil)

// ListCandidates returns the next page of the viewer's candidate feed.
//
// Behavior:
//   - Missing preferences accept everyone.
//   - Excludes the viewer, blocked users, past matches, passed users and
//     hidden profiles.
//   - next_pagination_token is empty once the feed is exhausted.
//
// Example:
//
//	svc.ListCandidates(ctx, &ListCandidatesRequest{ViewerUserId: "alice", PageSize: 20})
func (s *Service) ListCandidates(ctx context.Context, req *ListCandidatesRequest) (*ListCandidatesResponse, error) {
	s.appCtx.Logger.Debug("ListCandidates called", "viewer", req.ViewerUserId, "token", req.PaginationToken)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	prefs := domain.AllPreferences()
	if req.Preferences != nil {
		prefs = *req.Preferences
	}

	page, err := s.appCtx.Feed.NextPage(ctx, req.ViewerUserId, prefs, req.PaginationToken, req.PageSize)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &ListCandidatesResponse{
		Candidates:          page.Candidates,
		NextPaginationToken: page.NextCursor,
	}
	if resp.Candidates == nil {
		resp.Candidates = []domain.ProfileView{}
	}
	return resp, nil
}

// PutInterest records a like or super like and reports whether the pair
// is now matched.
//
// Behavior:
//   - Kind defaults to like.
//   - Mutual pending interests become a match in the same transaction.
//   - Repeating an interest is a no-op; like upgrades to super like.
//
// Example:
//
//	svc.PutInterest(ctx, &PutInterestRequest{ActorUserId: "1", RecipientUserId: "2", Kind: "super_like"})
func (s *Service) PutInterest(ctx context.Context, req *PutInterestRequest) (*PutInterestResponse, error) {
	s.appCtx.Logger.Debug(
		"PutInterest called",
		"actor", req.ActorUserId,
		"recipient", req.RecipientUserId,
		"kind", req.Kind,
	)
	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}

	kind := domain.KindLike
	if strings.TrimSpace(req.Kind) != "" {
		k, ok := domain.ParseInterestKind(req.Kind)
		if !ok {
			return nil, svcErr.InvalidArgument("kind must be like or super_like")
		}
		kind = k
	}

	res, err := s.appCtx.Ledger.RecordInterest(ctx, req.ActorUserId, req.RecipientUserId, kind)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &PutInterestResponse{NewMatch: res.Matched}
	if res.Match != nil {
		resp.MutualLikes = true
		resp.MatchId = res.Match.ID
	}
	return resp, nil
}

// WithdrawInterest removes a pending interest. Interests already consumed
// by a match cannot be withdrawn; use Unmatch.
func (s *Service) WithdrawInterest(ctx context.Context, req *PairRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("WithdrawInterest called", "actor", req.ActorUserId, "recipient", req.RecipientUserId)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Ledger.WithdrawInterest(ctx, req.ActorUserId, req.RecipientUserId); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

// PutPass hides the recipient from the actor's feed and "who liked you".
func (s *Service) PutPass(ctx context.Context, req *PairRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("PutPass called", "actor", req.ActorUserId, "recipient", req.RecipientUserId)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Feed.RecordPass(ctx, req.ActorUserId, req.RecipientUserId); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

// ListLikedYou returns the users with a pending interest in the recipient.
//
// Behavior:
//   - Excludes users the recipient blocked, was blocked by, or passed.
//   - Matched pairs are gone: their interests were consumed.
//   - Supports cursor-based pagination with paginationToken.
//   - Returns actor_id + timestamp pairs.
//
// Example:
//
//	svc.ListLikedYou(ctx, &ListLikedYouRequest{RecipientUserId: "42"})
func (s *Service) ListLikedYou(ctx context.Context, req *ListLikedYouRequest) (*ListLikedYouResponse, error) {
	s.appCtx.Logger.Debug("ListLikedYou called", "recipient", req.RecipientUserId, "token", req.PaginationToken)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}

	interests, nextToken, err := s.appCtx.Ledger.ListReceived(ctx, req.RecipientUserId, req.PaginationToken, req.Limit)
	if err != nil {
		s.appCtx.Logger.Error("ListReceived failed", "err", err)
		return nil, svcErr.Map(err)
	}

	resp := &ListLikedYouResponse{Likers: make([]Liker, 0, len(interests))}
	for _, in := range interests {
		resp.Likers = append(resp.Likers, Liker{
			ActorId:       in.FromID,
			Kind:          in.Kind,
			UnixTimestamp: uint64(in.UpdatedAt.UnixMilli()),
		})
	}
	resp.NextPaginationToken = nextToken

	s.appCtx.Logger.Debug("ListLikedYou result", "liker_count", len(resp.Likers))
	return resp, nil
}

// CountLikedYou returns how many users ListLikedYou would list.
// Cache-first: the counter lives in Redis for an hour of inactivity and is
// dropped by every write that could change it.
func (s *Service) CountLikedYou(ctx context.Context, req *CountLikedYouRequest) (*CountLikedYouResponse, error) {
	s.appCtx.Logger.Debug("CountLikedYou called", "recipient", req.RecipientUserId)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	count, err := s.appCtx.Ledger.CountReceived(ctx, req.RecipientUserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &CountLikedYouResponse{Count: uint64(count)}, nil
}

// ListMatches returns the user's active matches, newest first.
func (s *Service) ListMatches(ctx context.Context, req *ListMatchesRequest) (*ListMatchesResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	matches, err := s.appCtx.Registry.ListMatches(ctx, req.UserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &ListMatchesResponse{Matches: make([]Match, 0, len(matches))}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, Match{
			MatchId:       m.ID,
			CounterpartId: m.Pair().Other(req.UserId),
			Origin:        m.Origin,
			CreatedAt:     m.CreatedAt,
		})
	}
	return resp, nil
}

// Unmatch ends the pair's match for both users and freezes the
// conversation. Repeating it is a no-op; the pair can never match again.
func (s *Service) Unmatch(ctx context.Context, req *PairRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("Unmatch called", "actor", req.ActorUserId, "recipient", req.RecipientUserId)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Registry.Unmatch(ctx, req.ActorUserId, req.RecipientUserId); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}
