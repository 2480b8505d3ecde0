package chat

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/conversation"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/stream"
	"github.com/oggyb/muzz-matching/internal/validation"
)

// Service implements the Chat gRPC API on top of conversation.Service.
type Service struct {
	appCtx *app.AppContext
}

func NewChatService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

var _ ChatServer = (*Service)(nil)

// SendMessage appends a message to an active, unblocked match.
//
// Behavior:
//   - Content is trimmed, must be non-empty and at most 2000 characters.
//   - Sequence numbers are strictly increasing per conversation.
//   - The counterpart gets a MessageSent notification.
//
// Example:
//
//	svc.SendMessage(ctx, &SendMessageRequest{MatchId: id, SenderUserId: "alice", Content: "hi"})
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	s.appCtx.Logger.Debug("SendMessage called", "match", req.MatchId, "sender", req.SenderUserId)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	msg, err := s.appCtx.Chat.AppendMessage(ctx, req.MatchId, req.SenderUserId, req.Content)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &SendMessageResponse{Message: msg}, nil
}

func (s *Service) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	n, err := s.appCtx.Chat.MarkRead(ctx, req.MatchId, req.ReaderUserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &MarkReadResponse{Marked: n}, nil
}

// ListMessages pages backwards through history, newest first. Frozen
// conversations stay readable.
func (s *Service) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	msgs, err := s.appCtx.Chat.ListMessages(ctx, req.MatchId, req.ReaderUserId, req.BeforeSeq, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if msgs == nil {
		msgs = []domain.MessageView{}
	}
	return &ListMessagesResponse{Messages: msgs}, nil
}

func (s *Service) ListConversations(ctx context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	list, err := s.appCtx.Chat.ListConversations(ctx, req.UserId)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	return &ListConversationsResponse{Conversations: list}, nil
}

// DeleteConversation hides the history from the caller only.
func (s *Service) DeleteConversation(ctx context.Context, req *DeleteConversationRequest) (*Empty, error) {
	s.appCtx.Logger.Debug("DeleteConversation called", "match", req.MatchId, "user", req.UserId)

	if err := validation.Struct(req); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Chat.DeleteConversation(ctx, req.MatchId, req.UserId); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

// Subscribe streams conversation events until the client leaves, the
// match is blocked, or the broker connection drops. Headers are sent as
// soon as the subscription is live.
func (s *Service) Subscribe(req *SubscribeRequest, out server.ServerStream[stream.Event]) error {
	if err := validation.Struct(req); err != nil {
		return svcErr.Map(err)
	}
	ctx := out.Context()

	sub, err := s.appCtx.Chat.Subscribe(ctx, req.MatchId, req.ReaderUserId)
	if err != nil {
		return svcErr.Map(err)
	}
	defer sub.Close()

	if err := out.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	for ev := range sub.Events() {
		if err := out.Send(&ev); err != nil {
			return err
		}
	}

	err = sub.Err()
	switch {
	case err == nil || ctx.Err() != nil:
		return nil
	case errors.Is(err, conversation.ErrStreamClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return svcErr.Map(err)
	}
}
