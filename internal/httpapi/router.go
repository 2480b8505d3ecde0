// Package httpapi is the public REST and websocket API, served with gin
// next to the gRPC server.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/config"
)

// NewRouter registers every route on a fresh gin engine.
func NewRouter(appCtx *app.AppContext) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(appCtx.Logger), gin.Recovery())

	h := NewHandler(appCtx)
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", Auth(appCtx.Config.Auth.JWTSecret))
	{
		v1.GET("/feed", h.Feed)
		v1.POST("/passes", h.PutPass)

		v1.POST("/interests", h.PutInterest)
		v1.DELETE("/interests/:to", h.WithdrawInterest)
		v1.GET("/likes", h.ListLikes)
		v1.GET("/likes/count", h.CountLikes)

		v1.GET("/matches", h.ListMatches)
		v1.DELETE("/matches/:user_id", h.Unmatch)

		v1.GET("/conversations", h.ListConversations)
		v1.GET("/conversations/:id/messages", h.ListMessages)
		v1.POST("/conversations/:id/messages", h.SendMessage)
		v1.POST("/conversations/:id/read", h.MarkRead)
		v1.DELETE("/conversations/:id", h.DeleteConversation)
		v1.GET("/conversations/:id/ws", h.ServeConversation)

		v1.POST("/blocks", h.Block)
		v1.POST("/reports", h.Report)
	}
	return r
}

// Start serves handler until ctx is done, then shuts down. Request
// contexts derive from ctx, so open websockets end with it.
func Start(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}
