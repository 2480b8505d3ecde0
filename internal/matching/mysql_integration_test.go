//go:build integration

package matching_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/clock"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/db/dbtest"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/matching"
	"github.com/oggyb/muzz-matching/internal/repository"
)

// Run with a disposable MySQL:
//
//	DB_DRIVER=mysql DB_HOST=127.0.0.1 DB_NAME=muzz_test go test -tags integration ./internal/matching/
//
// Every table is emptied before and after.
func TestMySQL_ConcurrentReciprocalCreatesExactlyOneMatch(t *testing.T) {
	cfg := config.New()
	if cfg.DB.Driver != "mysql" {
		t.Skip("DB_DRIVER is not mysql")
	}
	gdb, err := db.NewDB(cfg)
	if err != nil {
		t.Skipf("mysql unavailable: %v", err)
	}
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(32)
	t.Cleanup(func() {
		_ = db.ResetTables(gdb)
		_ = sqlDB.Close()
	})
	require.NoError(t, db.ResetTables(gdb))

	const pairs = 20
	for i := 0; i < pairs; i++ {
		dbtest.Profile(t, gdb, fmt.Sprintf("a%02d", i), t0)
		dbtest.Profile(t, gdb, fmt.Sprintf("b%02d", i), t0.Add(time.Second))
	}

	repos := repository.New(gdb).WithTxAttempts(5)
	sink := &recordingSink{}
	registry := matching.NewRegistry(repos, clock.NewSystem(), logger.Discard()).WithNotifier(sink)
	ledger := matching.NewLedger(repos, registry, clock.NewSystem(), logger.Discard())

	ctx := context.Background()
	start := make(chan struct{})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created = make(map[string]int)
	)
	for i := 0; i < pairs; i++ {
		a, b := fmt.Sprintf("a%02d", i), fmt.Sprintf("b%02d", i)
		for _, dir := range [][2]string{{a, b}, {b, a}} {
			wg.Add(1)
			go func(from, to string) {
				defer wg.Done()
				<-start
				res, err := ledger.RecordInterest(ctx, from, to, domain.KindLike)
				if !assert.NoError(t, err) {
					return
				}
				if res.Matched {
					mu.Lock()
					created[domain.NewPair(from, to).String()]++
					mu.Unlock()
				}
			}(dir[0], dir[1])
		}
	}
	close(start)
	wg.Wait()

	for i := 0; i < pairs; i++ {
		p := domain.NewPair(fmt.Sprintf("a%02d", i), fmt.Sprintf("b%02d", i))
		assert.Equal(t, 1, created[p.String()], "pair %s", p)

		var n int64
		require.NoError(t, gdb.Model(&db.Match{}).
			Where("user_low = ? AND user_high = ?", p.Low, p.High).Count(&n).Error)
		assert.Equal(t, int64(1), n, "pair %s", p)
	}
	assert.Equal(t, pairs, sink.count())
}
