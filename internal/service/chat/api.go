package chat

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/stream"
)

const ServiceName = "muzz.chat.v1.ChatService"

type Empty struct{}

type SendMessageRequest struct {
	MatchId      string `json:"match_id" validate:"required,max=36"`
	SenderUserId string `json:"sender_user_id" validate:"required,max=64"`
	Content      string `json:"content"`
}

type SendMessageResponse struct {
	Message domain.MessageView `json:"message"`
}

type MarkReadRequest struct {
	MatchId      string `json:"match_id" validate:"required,max=36"`
	ReaderUserId string `json:"reader_user_id" validate:"required,max=64"`
}

type MarkReadResponse struct {
	// Marked is how many messages became read by this call.
	Marked int64 `json:"marked"`
}

type ListMessagesRequest struct {
	MatchId      string `json:"match_id" validate:"required,max=36"`
	ReaderUserId string `json:"reader_user_id" validate:"required,max=64"`
	// BeforeSeq pages backwards; zero starts at the newest message.
	BeforeSeq uint64 `json:"before_seq,omitempty"`
	Limit     int    `json:"limit,omitempty" validate:"gte=0"`
}

type ListMessagesResponse struct {
	Messages []domain.MessageView `json:"messages"`
}

type ListConversationsRequest struct {
	UserId string `json:"user_id" validate:"required,max=64"`
}

type ListConversationsResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}

type DeleteConversationRequest struct {
	MatchId string `json:"match_id" validate:"required,max=36"`
	UserId  string `json:"user_id" validate:"required,max=64"`
}

type SubscribeRequest struct {
	MatchId      string `json:"match_id" validate:"required,max=36"`
	ReaderUserId string `json:"reader_user_id" validate:"required,max=64"`
}

// ChatServer is the server API of the chat service.
type ChatServer interface {
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	DeleteConversation(context.Context, *DeleteConversationRequest) (*Empty, error)
	Subscribe(*SubscribeRequest, server.ServerStream[stream.Event]) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		server.UnaryMethod(ServiceName, "SendMessage", ChatServer.SendMessage),
		server.UnaryMethod(ServiceName, "MarkRead", ChatServer.MarkRead),
		server.UnaryMethod(ServiceName, "ListMessages", ChatServer.ListMessages),
		server.UnaryMethod(ServiceName, "ListConversations", ChatServer.ListConversations),
		server.UnaryMethod(ServiceName, "DeleteConversation", ChatServer.DeleteConversation),
	},
	Streams: []grpc.StreamDesc{
		server.ServerStreamMethod("Subscribe", ChatServer.Subscribe),
	},
	Metadata: "chat",
}

// Client calls the chat service over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return server.Invoke[SendMessageResponse](ctx, c.cc, "/"+ServiceName+"/SendMessage", in, opts...)
}

func (c *Client) MarkRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	return server.Invoke[MarkReadResponse](ctx, c.cc, "/"+ServiceName+"/MarkRead", in, opts...)
}

func (c *Client) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return server.Invoke[ListMessagesResponse](ctx, c.cc, "/"+ServiceName+"/ListMessages", in, opts...)
}

func (c *Client) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	return server.Invoke[ListConversationsResponse](ctx, c.cc, "/"+ServiceName+"/ListConversations", in, opts...)
}

func (c *Client) DeleteConversation(ctx context.Context, in *DeleteConversationRequest, opts ...grpc.CallOption) (*Empty, error) {
	return server.Invoke[Empty](ctx, c.cc, "/"+ServiceName+"/DeleteConversation", in, opts...)
}

// Subscribe opens the conversation's event stream. It returns once the
// server sent its headers, which it does after the subscription is live;
// access errors surface on the first Recv.
func (c *Client) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (*server.ClientStream[stream.Event], error) {
	cs, err := server.OpenServerStream[stream.Event](ctx, c.cc, &ServiceDesc.Streams[0], "/"+ServiceName+"/Subscribe", in, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := cs.Header(); err != nil {
		return nil, err
	}
	return cs, nil
}
