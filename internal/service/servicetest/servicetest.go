// Package servicetest runs gRPC services against in-memory SQLite and
// miniredis.
package servicetest

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db/dbtest"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/server"
)

// Env is one test's database, Redis and wired AppContext.
type Env struct {
	App   *app.AppContext
	DB    *gorm.DB
	Redis *miniredis.Miniredis
	Sink  *Sink
}

// New builds an Env. Chat rate limiting is off unless opts turn it on.
func New(t testing.TB, opts ...app.Option) *Env {
	t.Helper()

	gdb := dbtest.Open(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Chat.MessageRate = 0

	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	sink := &Sink{}
	opts = append([]app.Option{app.WithNotifier(sink)}, opts...)
	return &Env{
		App:   app.New(cfg, gdb, rc, logger.Discard(), opts...),
		DB:    gdb,
		Redis: mr,
		Sink:  sink,
	}
}

// Serve starts a gRPC server with the given services on a loopback port
// and returns a client connection to it.
func Serve(t testing.TB, registrars ...server.Registrar) *grpc.ClientConn {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := server.NewGRPCServer(logger.Discard(), registrars...)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	conn, err := grpc.NewClient(
		listener.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	})
	return conn
}

// Sink records notifications.
type Sink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *Sink) Notify(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// OfType returns the recorded events of type t.
func (s *Sink) OfType(t notify.EventType) []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
