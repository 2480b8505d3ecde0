package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/oggyb/muzz-matching/internal/conversation"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// clients are native apps; auth is the token, not the origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ListConversations serves GET /v1/conversations.
func (h *Handler) ListConversations(c *gin.Context) {
	list, err := h.appCtx.Chat.ListConversations(c.Request.Context(), caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

type historyQuery struct {
	BeforeSeq uint64 `form:"before_seq"`
	Limit     int    `form:"limit" binding:"gte=0"`
}

// ListMessages serves GET /v1/conversations/:id/messages.
func (h *Handler) ListMessages(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	msgs, err := h.appCtx.Chat.ListMessages(c.Request.Context(), c.Param("id"), caller(c), q.BeforeSeq, q.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.MessageView{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type messageBody struct {
	Content string `json:"content"`
}

// SendMessage serves POST /v1/conversations/:id/messages.
func (h *Handler) SendMessage(c *gin.Context) {
	var body messageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	msg, err := h.appCtx.Chat.AppendMessage(c.Request.Context(), c.Param("id"), caller(c), body.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead serves POST /v1/conversations/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	n, err := h.appCtx.Chat.MarkRead(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// DeleteConversation serves DELETE /v1/conversations/:id.
func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.appCtx.Chat.DeleteConversation(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ServeConversation serves GET /v1/conversations/:id/ws. Access is
// checked before the upgrade so refusals are plain HTTP errors; after
// it, events are written as JSON text frames until the match is blocked
// or either side goes away.
func (h *Handler) ServeConversation(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.appCtx.Chat.Subscribe(ctx, c.Param("id"), caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied
		h.appCtx.Logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	go readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				closeWith(conn, sub.Err())
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			closeWith(conn, nil)
			return
		}
	}
}

// readPump drains client frames so pongs and close frames are handled,
// and cancels the stream when the client leaves.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeWith(conn *websocket.Conn, err error) {
	code, text := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(err, svcErr.ErrMatchNotActive):
		code, text = websocket.ClosePolicyViolation, svcErr.ErrMatchNotActive.Message
	case errors.Is(err, conversation.ErrStreamClosed):
		code, text = websocket.CloseTryAgainLater, err.Error()
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
