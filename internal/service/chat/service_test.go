package chat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matching/internal/db/dbtest"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/service/chat"
	"github.com/oggyb/muzz-matching/internal/service/servicetest"
	"github.com/oggyb/muzz-matching/internal/stream"
)

type fixture struct {
	env     *servicetest.Env
	client  *chat.Client
	matchID string
}

// setup matches alice and bob; carol is a bystander.
func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	env := servicetest.New(t)

	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	for i, id := range []string{"alice", "bob", "carol"} {
		dbtest.Profile(t, env.DB, id, base.Add(time.Duration(i)*time.Minute))
	}
	_, err := env.App.Ledger.RecordInterest(ctx, "alice", "bob", domain.KindLike)
	require.NoError(t, err)
	res, err := env.App.Ledger.RecordInterest(ctx, "bob", "alice", domain.KindLike)
	require.NoError(t, err)
	require.True(t, res.Matched)

	conn := servicetest.Serve(t, chat.NewRegistrar(env.App))
	return &fixture{env: env, client: chat.NewClient(conn), matchID: res.Match.ID}
}

func recv(t *testing.T, s *server.ClientStream[stream.Event]) *stream.Event {
	t.Helper()
	type result struct {
		ev  *stream.Event
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := s.Recv()
		ch <- result{ev, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestSendListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sent, err := f.client.SendMessage(ctx, &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "alice", Content: " salaam "})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sent.Message.Seq)
	assert.Equal(t, "salaam", sent.Message.Content)
	assert.Equal(t, []string{"alice"}, sent.Message.ReadBy)

	_, err = f.client.SendMessage(ctx, &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "bob", Content: "hey"})
	require.NoError(t, err)

	msgs, err := f.client.ListMessages(ctx, &chat.ListMessagesRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, uint64(2), msgs.Messages[0].Seq)

	convs, err := f.client.ListConversations(ctx, &chat.ListConversationsRequest{UserId: "bob"})
	require.NoError(t, err)
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, "alice", convs.Conversations[0].CounterpartID)
	assert.Equal(t, "hey", convs.Conversations[0].LastMessage)
	assert.Equal(t, int64(1), convs.Conversations[0].Unread)

	read, err := f.client.MarkRead(ctx, &chat.MarkReadRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), read.Marked)

	read, err = f.client.MarkRead(ctx, &chat.MarkReadRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)
	assert.Zero(t, read.Marked)

	sentTo := f.env.Sink.OfType(notify.MessageSent)
	require.Len(t, sentTo, 2)
	assert.Equal(t, []string{"bob"}, sentTo[0].Recipients)
}

func TestSendMessage_Rejections(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	cases := []struct {
		name string
		req  *chat.SendMessageRequest
		code codes.Code
	}{
		{"blank", &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "alice", Content: "   "}, codes.InvalidArgument},
		{"too long", &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "alice", Content: strings.Repeat("م", 2001)}, codes.InvalidArgument},
		{"missing match", &chat.SendMessageRequest{SenderUserId: "alice", Content: "hi"}, codes.InvalidArgument},
		{"unknown match", &chat.SendMessageRequest{MatchId: "nope", SenderUserId: "alice", Content: "hi"}, codes.NotFound},
		{"outsider", &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "carol", Content: "hi"}, codes.PermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.client.SendMessage(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, status.Code(err))
		})
	}

	// exactly 2000 characters is fine
	_, err := f.client.SendMessage(ctx, &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "alice", Content: strings.Repeat("م", 2000)})
	require.NoError(t, err)
}

func TestSendMessage_AfterUnmatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.client.SendMessage(ctx, &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "alice", Content: "bye"})
	require.NoError(t, err)
	require.NoError(t, f.env.App.Registry.Unmatch(ctx, "alice", "bob"))

	_, err = f.client.SendMessage(ctx, &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "bob", Content: "wait"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	// history stays readable
	msgs, err := f.client.ListMessages(ctx, &chat.ListMessagesRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)
	assert.Len(t, msgs.Messages, 1)
}

func TestDeleteConversation_OnlyForCaller(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.client.SendMessage(ctx, &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "alice", Content: "hi"})
	require.NoError(t, err)

	_, err = f.client.DeleteConversation(ctx, &chat.DeleteConversationRequest{MatchId: f.matchID, UserId: "bob"})
	require.NoError(t, err)

	bob, err := f.client.ListMessages(ctx, &chat.ListMessagesRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)
	assert.Empty(t, bob.Messages)

	alice, err := f.client.ListMessages(ctx, &chat.ListMessagesRequest{MatchId: f.matchID, ReaderUserId: "alice"})
	require.NoError(t, err)
	assert.Len(t, alice.Messages, 1)
}

func TestSubscribe_DeliversEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := setup(t)

	sub, err := f.client.Subscribe(ctx, &chat.SubscribeRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)

	sent, err := f.client.SendMessage(ctx, &chat.SendMessageRequest{MatchId: f.matchID, SenderUserId: "alice", Content: "live"})
	require.NoError(t, err)

	ev := recv(t, sub)
	assert.Equal(t, stream.MessageAppended, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, sent.Message.ID, ev.Message.ID)

	_, err = f.client.MarkRead(ctx, &chat.MarkReadRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)
	ev = recv(t, sub)
	assert.Equal(t, stream.MessagesRead, ev.Type)
	assert.Equal(t, "bob", ev.ActorID)
}

func TestSubscribe_EndsOnBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := setup(t)

	sub, err := f.client.Subscribe(ctx, &chat.SubscribeRequest{MatchId: f.matchID, ReaderUserId: "bob"})
	require.NoError(t, err)

	require.NoError(t, f.env.App.Gate.Block(ctx, "alice", "bob"))

	done := make(chan error, 1)
	go func() {
		_, err := sub.Recv()
		done <- err
	}()
	select {
	case err := <-done:
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after block")
	}
}

func TestSubscribe_Outsider(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := setup(t)

	sub, err := f.client.Subscribe(ctx, &chat.SubscribeRequest{MatchId: f.matchID, ReaderUserId: "carol"})
	if err == nil {
		_, err = sub.Recv()
	}
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
