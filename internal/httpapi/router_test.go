package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/db/dbtest"
	"github.com/oggyb/muzz-matching/internal/httpapi"
	"github.com/oggyb/muzz-matching/internal/service/servicetest"
	"github.com/oggyb/muzz-matching/internal/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	env *servicetest.Env
	srv *httptest.Server
}

func setup(t *testing.T, secret string) *fixture {
	t.Helper()
	env := servicetest.New(t)
	env.App.Config.Auth.JWTSecret = secret

	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	for i, id := range []string{"alice", "bob", "carol"} {
		dbtest.Profile(t, env.DB, id, base.Add(time.Duration(i)*time.Minute))
	}

	srv := httptest.NewServer(httpapi.NewRouter(env.App))
	t.Cleanup(srv.Close)
	return &fixture{env: env, srv: srv}
}

// do sends a request as user and decodes the JSON reply, if any.
func (f *fixture) do(t *testing.T, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(httpapi.UserIDHeader, user)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errKind(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	kind, _ := e["kind"].(string)
	return kind
}

// match makes alice and bob like each other and returns the match id.
func (f *fixture) match(t *testing.T) string {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/v1/interests", "alice", map[string]string{"to": "bob"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["matched"])

	code, body = f.do(t, http.MethodPost, "/v1/interests", "bob", map[string]string{"to": "alice", "kind": "super_like"})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["matched"])
	assert.Equal(t, true, body["new_match"])
	return body["match_id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	f := setup(t, "")

	code, body := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	resp, err := f.srv.Client().Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "muzz_")
}

func TestAuth_HeaderRequired(t *testing.T) {
	f := setup(t, "")

	code, body := f.do(t, http.MethodGet, "/v1/matches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHENTICATED", errKind(body))
}

func TestAuth_JWT(t *testing.T) {
	f := setup(t, "test-secret")

	token, err := httpapi.IssueToken("test-secret", "alice", time.Hour)
	require.NoError(t, err)

	get := func(auth string) int {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/v1/likes/count", nil)
		require.NoError(t, err)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		// ignored once a secret is set
		req.Header.Set(httpapi.UserIDHeader, "bob")
		resp, err := f.srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("Bearer "+token))
	assert.Equal(t, http.StatusUnauthorized, get(""))
	assert.Equal(t, http.StatusUnauthorized, get("Bearer not-a-token"))

	forged, err := httpapi.IssueToken("other-secret", "alice", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+forged))

	expired, err := httpapi.IssueToken("test-secret", "alice", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+expired))

	sub, err := httpapi.ParseToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestInterestErrors(t *testing.T) {
	f := setup(t, "")

	code, body := f.do(t, http.MethodPost, "/v1/interests", "alice", map[string]string{"to": "alice"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION", errKind(body))

	code, body = f.do(t, http.MethodPost, "/v1/interests", "alice", map[string]string{"to": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errKind(body))

	code, _ = f.do(t, http.MethodPost, "/v1/interests", "alice", map[string]string{"to": "bob", "kind": "wink"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/v1/interests", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodDelete, "/v1/interests/bob", "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFeedLikesAndPasses(t *testing.T) {
	f := setup(t, "")

	code, body := f.do(t, http.MethodGet, "/v1/feed?page_size=10", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["candidates"], 2)

	code, body = f.do(t, http.MethodGet, "/v1/feed?genders=man,non-binary", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["candidates"])

	code, _ = f.do(t, http.MethodGet, "/v1/feed?min_age=40&max_age=30", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/v1/interests", "bob", map[string]string{"to": "alice"})
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodGet, "/v1/likes/count", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = f.do(t, http.MethodGet, "/v1/likes", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	likers := body["likers"].([]any)
	require.Len(t, likers, 1)
	assert.Equal(t, "bob", likers[0].(map[string]any)["user_id"])

	code, _ = f.do(t, http.MethodPost, "/v1/passes", "alice", map[string]string{"to": "bob"})
	require.Equal(t, http.StatusNoContent, code)

	code, body = f.do(t, http.MethodGet, "/v1/likes/count", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, body = f.do(t, http.MethodGet, "/v1/feed", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["candidates"], 1)
}

func TestMatchChatAndUnmatch(t *testing.T) {
	f := setup(t, "")
	matchID := f.match(t)

	code, body := f.do(t, http.MethodGet, "/v1/matches", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "bob", matches[0].(map[string]any)["counterpart_id"])
	assert.Equal(t, "super_like", matches[0].(map[string]any)["origin"])

	path := "/v1/conversations/" + matchID
	code, body = f.do(t, http.MethodPost, path+"/messages", "alice", map[string]string{"content": "hello bob"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), body["seq"])

	code, _ = f.do(t, http.MethodPost, path+"/messages", "carol", map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = f.do(t, http.MethodPost, path+"/messages", "alice", map[string]string{"content": strings.Repeat("a", 2001)})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION", errKind(body))

	code, body = f.do(t, http.MethodGet, "/v1/conversations", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	convs := body["conversations"].([]any)
	require.Len(t, convs, 1)
	assert.Equal(t, float64(1), convs[0].(map[string]any)["unread"])

	code, body = f.do(t, http.MethodPost, path+"/read", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["marked"])

	code, _ = f.do(t, http.MethodDelete, "/v1/matches/alice", "bob", nil)
	require.Equal(t, http.StatusNoContent, code)

	code, body = f.do(t, http.MethodPost, path+"/messages", "alice", map[string]string{"content": "still there?"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "MATCH_NOT_ACTIVE", errKind(body))

	code, body = f.do(t, http.MethodGet, path+"/messages", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["messages"], 1)

	code, _ = f.do(t, http.MethodDelete, path, "alice", nil)
	require.Equal(t, http.StatusNoContent, code)
	code, body = f.do(t, http.MethodGet, path+"/messages", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["messages"])
}

func TestSafetyRoutes(t *testing.T) {
	f := setup(t, "")
	f.match(t)

	code, _ := f.do(t, http.MethodPost, "/v1/blocks", "alice", map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusNoContent, code)

	code, body := f.do(t, http.MethodGet, "/v1/matches", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["matches"])

	code, body = f.do(t, http.MethodPost, "/v1/interests", "bob", map[string]string{"to": "alice"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_BLOCKED", errKind(body))

	code, body = f.do(t, http.MethodPost, "/v1/reports", "alice", map[string]string{
		"target_id": "bob", "target_kind": "user", "reason": "spam",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", body["status"])

	code, _ = f.do(t, http.MethodPost, "/v1/reports", "alice", map[string]string{
		"target_id": "bob", "target_kind": "planet", "reason": "spam",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestConversationWebsocket(t *testing.T) {
	f := setup(t, "")
	matchID := f.match(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/conversations/" + matchID + "/ws"
	header := http.Header{}
	header.Set(httpapi.UserIDHeader, "bob")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	code, _ := f.do(t, http.MethodPost, "/v1/conversations/"+matchID+"/messages", "alice", map[string]string{"content": "live"})
	require.Equal(t, http.StatusCreated, code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev stream.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, stream.MessageAppended, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "live", ev.Message.Content)

	// a block ends the stream with a policy close
	code, _ = f.do(t, http.MethodPost, "/v1/blocks", "alice", map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusNoContent, code)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), err.Error())
}

func TestConversationWebsocket_Refused(t *testing.T) {
	f := setup(t, "")
	matchID := f.match(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/conversations/" + matchID + "/ws"
	header := http.Header{}
	header.Set(httpapi.UserIDHeader, "carol")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
