package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/safety"
)

var errInvalidKind = errors.New("kind must be like or super_like")

// Handler serves the public REST and websocket API. Every route acts as
// the authenticated caller.
type Handler struct {
	appCtx *app.AppContext
}

func NewHandler(appCtx *app.AppContext) *Handler {
	return &Handler{appCtx: appCtx}
}

// Health checks the database and Redis.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"db": "ok", "redis": "ok"}
	healthy := true
	if sqlDB, err := h.appCtx.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["db"] = "unavailable"
		healthy = false
	}
	if err := h.appCtx.RedisCache.Ping(ctx); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

type feedQuery struct {
	Cursor        string  `form:"cursor"`
	PageSize      int     `form:"page_size" binding:"gte=0"`
	Genders       string  `form:"genders"`
	Orientations  string  `form:"orientations"`
	MinAge        int     `form:"min_age" binding:"gte=0"`
	MaxAge        int     `form:"max_age" binding:"gte=0"`
	MaxDistanceKm float64 `form:"max_distance_km" binding:"gte=0"`
}

// splitSelection turns "woman,non-binary" into a Selection; empty means
// everyone.
func splitSelection(v string) domain.Selection {
	var out domain.Selection
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Feed serves GET /v1/feed.
func (h *Handler) Feed(c *gin.Context) {
	var q feedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	prefs := domain.Preferences{
		Age:           domain.AgeRange{Min: q.MinAge, Max: q.MaxAge},
		Genders:       splitSelection(q.Genders),
		Orientations:  splitSelection(q.Orientations),
		MaxDistanceKm: q.MaxDistanceKm,
	}

	page, err := h.appCtx.Feed.NextPage(c.Request.Context(), caller(c), prefs, q.Cursor, q.PageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if page.Candidates == nil {
		page.Candidates = []domain.ProfileView{}
	}
	c.JSON(http.StatusOK, page)
}

type interestBody struct {
	To   string `json:"to" binding:"required,max=64"`
	Kind string `json:"kind"`
}

// PutInterest serves POST /v1/interests.
func (h *Handler) PutInterest(c *gin.Context) {
	var body interestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	kind := domain.KindLike
	if strings.TrimSpace(body.Kind) != "" {
		k, ok := domain.ParseInterestKind(body.Kind)
		if !ok {
			h.badRequest(c, errInvalidKind)
			return
		}
		kind = k
	}

	res, err := h.appCtx.Ledger.RecordInterest(c.Request.Context(), caller(c), body.To, kind)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := gin.H{"matched": res.Match != nil, "new_match": res.Matched}
	if res.Match != nil {
		resp["match_id"] = res.Match.ID
	}
	c.JSON(http.StatusOK, resp)
}

// WithdrawInterest serves DELETE /v1/interests/:to.
func (h *Handler) WithdrawInterest(c *gin.Context) {
	if err := h.appCtx.Ledger.WithdrawInterest(c.Request.Context(), caller(c), c.Param("to")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type targetBody struct {
	To string `json:"to" binding:"required,max=64"`
}

// PutPass serves POST /v1/passes.
func (h *Handler) PutPass(c *gin.Context) {
	var body targetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.appCtx.Feed.RecordPass(c.Request.Context(), caller(c), body.To); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type likesQuery struct {
	Token string `form:"token"`
	Limit int    `form:"limit" binding:"gte=0"`
}

// ListLikes serves GET /v1/likes.
func (h *Handler) ListLikes(c *gin.Context) {
	var q likesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	var token *string
	if q.Token != "" {
		token = &q.Token
	}

	interests, next, err := h.appCtx.Ledger.ListReceived(c.Request.Context(), caller(c), token, q.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	likers := make([]gin.H, 0, len(interests))
	for _, in := range interests {
		likers = append(likers, gin.H{"user_id": in.FromID, "kind": in.Kind, "at": in.UpdatedAt})
	}
	resp := gin.H{"likers": likers}
	if next != nil {
		resp["next_token"] = *next
	}
	c.JSON(http.StatusOK, resp)
}

// CountLikes serves GET /v1/likes/count.
func (h *Handler) CountLikes(c *gin.Context) {
	n, err := h.appCtx.Ledger.CountReceived(c.Request.Context(), caller(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// ListMatches serves GET /v1/matches.
func (h *Handler) ListMatches(c *gin.Context) {
	me := caller(c)
	matches, err := h.appCtx.Registry.ListMatches(c.Request.Context(), me)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		out = append(out, gin.H{
			"match_id":       m.ID,
			"counterpart_id": m.Pair().Other(me),
			"origin":         m.Origin,
			"created_at":     m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"matches": out})
}

// Unmatch serves DELETE /v1/matches/:user_id.
func (h *Handler) Unmatch(c *gin.Context) {
	if err := h.appCtx.Registry.Unmatch(c.Request.Context(), caller(c), c.Param("user_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type blockBody struct {
	UserID string `json:"user_id" binding:"required,max=64"`
}

// Block serves POST /v1/blocks.
func (h *Handler) Block(c *gin.Context) {
	var body blockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.appCtx.Gate.Block(c.Request.Context(), caller(c), body.UserID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reportBody struct {
	TargetID   string `json:"target_id"`
	TargetKind string `json:"target_kind"`
	Reason     string `json:"reason"`
}

// Report serves POST /v1/reports.
func (h *Handler) Report(c *gin.Context) {
	var body reportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}
	rep, err := h.appCtx.Gate.Report(c.Request.Context(), safety.ReportInput{
		ReporterID: caller(c),
		TargetID:   body.TargetID,
		TargetKind: domain.ReportTargetKind(body.TargetKind),
		Reason:     body.Reason,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report_id": rep.ID, "status": rep.Status})
}
