package explore

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/server"
)

const ServiceName = "muzz.explore.v1.ExploreService"

type Empty struct{}

type ListCandidatesRequest struct {
	ViewerUserId    string              `json:"viewer_user_id" validate:"required,max=64"`
	Preferences     *domain.Preferences `json:"preferences,omitempty"`
	PaginationToken string              `json:"pagination_token,omitempty"`
	PageSize        int                 `json:"page_size,omitempty" validate:"gte=0"`
}

type ListCandidatesResponse struct {
	Candidates          []domain.ProfileView `json:"candidates"`
	NextPaginationToken string               `json:"next_pagination_token,omitempty"`
}

type PutInterestRequest struct {
	ActorUserId     string `json:"actor_user_id" validate:"required,max=64"`
	RecipientUserId string `json:"recipient_user_id" validate:"required,max=64"`
	// Kind is "like" (default) or "super_like".
	Kind string `json:"kind,omitempty"`
}

type PutInterestResponse struct {
	// MutualLikes is true once the pair is matched, by this call or before.
	MutualLikes bool   `json:"mutual_likes"`
	MatchId     string `json:"match_id,omitempty"`
	// NewMatch is true only for the call that created the match.
	NewMatch bool `json:"new_match"`
}

type PairRequest struct {
	ActorUserId     string `json:"actor_user_id" validate:"required,max=64"`
	RecipientUserId string `json:"recipient_user_id" validate:"required,max=64"`
}

type ListLikedYouRequest struct {
	RecipientUserId string  `json:"recipient_user_id" validate:"required,max=64"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int     `json:"limit,omitempty" validate:"gte=0"`
}

type Liker struct {
	ActorId       string `json:"actor_id"`
	Kind          string `json:"kind"`
	UnixTimestamp uint64 `json:"unix_timestamp"`
}

type ListLikedYouResponse struct {
	Likers              []Liker `json:"likers"`
	NextPaginationToken *string `json:"next_pagination_token,omitempty"`
}

type CountLikedYouRequest struct {
	RecipientUserId string `json:"recipient_user_id" validate:"required,max=64"`
}

type CountLikedYouResponse struct {
	Count uint64 `json:"count"`
}

type ListMatchesRequest struct {
	UserId string `json:"user_id" validate:"required,max=64"`
}

type Match struct {
	MatchId       string    `json:"match_id"`
	CounterpartId string    `json:"counterpart_id"`
	Origin        string    `json:"origin"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListMatchesResponse struct {
	Matches []Match `json:"matches"`
}

// ExploreServer is the server API of the explore service.
type ExploreServer interface {
	ListCandidates(context.Context, *ListCandidatesRequest) (*ListCandidatesResponse, error)
	PutInterest(context.Context, *PutInterestRequest) (*PutInterestResponse, error)
	WithdrawInterest(context.Context, *PairRequest) (*Empty, error)
	PutPass(context.Context, *PairRequest) (*Empty, error)
	ListLikedYou(context.Context, *ListLikedYouRequest) (*ListLikedYouResponse, error)
	CountLikedYou(context.Context, *CountLikedYouRequest) (*CountLikedYouResponse, error)
	ListMatches(context.Context, *ListMatchesRequest) (*ListMatchesResponse, error)
	Unmatch(context.Context, *PairRequest) (*Empty, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExploreServer)(nil),
	Methods: []grpc.MethodDesc{
		server.UnaryMethod(ServiceName, "ListCandidates", ExploreServer.ListCandidates),
		server.UnaryMethod(ServiceName, "PutInterest", ExploreServer.PutInterest),
		server.UnaryMethod(ServiceName, "WithdrawInterest", ExploreServer.WithdrawInterest),
		server.UnaryMethod(ServiceName, "PutPass", ExploreServer.PutPass),
		server.UnaryMethod(ServiceName, "ListLikedYou", ExploreServer.ListLikedYou),
		server.UnaryMethod(ServiceName, "CountLikedYou", ExploreServer.CountLikedYou),
		server.UnaryMethod(ServiceName, "ListMatches", ExploreServer.ListMatches),
		server.UnaryMethod(ServiceName, "Unmatch", ExploreServer.Unmatch),
	},
	Metadata: "explore",
}

// Client calls the explore service over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ListCandidates(ctx context.Context, in *ListCandidatesRequest, opts ...grpc.CallOption) (*ListCandidatesResponse, error) {
	return server.Invoke[ListCandidatesResponse](ctx, c.cc, "/"+ServiceName+"/ListCandidates", in, opts...)
}

func (c *Client) PutInterest(ctx context.Context, in *PutInterestRequest, opts ...grpc.CallOption) (*PutInterestResponse, error) {
	return server.Invoke[PutInterestResponse](ctx, c.cc, "/"+ServiceName+"/PutInterest", in, opts...)
}

func (c *Client) WithdrawInterest(ctx context.Context, in *PairRequest, opts ...grpc.CallOption) (*Empty, error) {
	return server.Invoke[Empty](ctx, c.cc, "/"+ServiceName+"/WithdrawInterest", in, opts...)
}

func (c *Client) PutPass(ctx context.Context, in *PairRequest, opts ...grpc.CallOption) (*Empty, error) {
	return server.Invoke[Empty](ctx, c.cc, "/"+ServiceName+"/PutPass", in, opts...)
}

func (c *Client) ListLikedYou(ctx context.Context, in *ListLikedYouRequest, opts ...grpc.CallOption) (*ListLikedYouResponse, error) {
	return server.Invoke[ListLikedYouResponse](ctx, c.cc, "/"+ServiceName+"/ListLikedYou", in, opts...)
}

func (c *Client) CountLikedYou(ctx context.Context, in *CountLikedYouRequest, opts ...grpc.CallOption) (*CountLikedYouResponse, error) {
	return server.Invoke[CountLikedYouResponse](ctx, c.cc, "/"+ServiceName+"/CountLikedYou", in, opts...)
}

func (c *Client) ListMatches(ctx context.Context, in *ListMatchesRequest, opts ...grpc.CallOption) (*ListMatchesResponse, error) {
	return server.Invoke[ListMatchesResponse](ctx, c.cc, "/"+ServiceName+"/ListMatches", in, opts...)
}

func (c *Client) Unmatch(ctx context.Context, in *PairRequest, opts ...grpc.CallOption) (*Empty, error) {
	return server.Invoke[Empty](ctx, c.cc, "/"+ServiceName+"/Unmatch", in, opts...)
}
