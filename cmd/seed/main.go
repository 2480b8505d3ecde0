package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	"github.com/oggyb/muzz-matching/internal/httpapi"
	"github.com/oggyb/muzz-matching/internal/logger"
)

type seedFlags struct {
	profiles  int
	interests int
	seed      int64
	matches   int
	tokens    int
	tokenTTL  time.Duration
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := db.DefaultSeedOptions()
	f := seedFlags{}

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Reset the database and load demo profiles, interests and matches",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}
	cmd.Flags().IntVar(&f.profiles, "profiles", defaults.Profiles, "number of profiles (user1..userN)")
	cmd.Flags().IntVar(&f.interests, "interests", defaults.Interests, "one-way interests drawn per profile")
	cmd.Flags().Int64Var(&f.seed, "seed", defaults.Seed, "random seed")
	cmd.Flags().IntVar(&f.matches, "matches", 3, "mutual matches to create between neighbouring users")
	cmd.Flags().IntVar(&f.tokens, "tokens", 0, "print API tokens for the first N users (needs JWT_SECRET)")
	cmd.Flags().DurationVar(&f.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed tokens")
	return cmd
}

func run(cmd *cobra.Command, f seedFlags) error {
	ctx := context.Background()

	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	if f.profiles < 2 {
		return fmt.Errorf("need at least 2 profiles, got %d", f.profiles)
	}

	database, err := db.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}

	opts := db.SeedOptions{Profiles: f.profiles, Interests: f.interests, Seed: f.seed}
	if err := db.SeedTestData(database, opts); err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}
	cmd.Printf("seeded %d profiles (seed %d)\n", f.profiles, f.seed)

	// matches go through the ledger so conversations and counters exist
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	appCtx := app.New(cfg, database, redisCache, log)

	created := 0
	for i := 1; i+1 <= f.profiles && created < f.matches; i += 2 {
		a, b := fmt.Sprintf("user%d", i), fmt.Sprintf("user%d", i+1)
		if _, err := appCtx.Ledger.RecordInterest(ctx, a, b, domain.KindLike); err != nil {
			log.Warn("skipping pair", "from", a, "to", b, "err", err)
			continue
		}
		res, err := appCtx.Ledger.RecordInterest(ctx, b, a, domain.KindLike)
		if err != nil {
			log.Warn("skipping pair", "from", b, "to", a, "err", err)
			continue
		}
		if res.Match != nil {
			created++
			cmd.Printf("matched %s and %s (match %s)\n", a, b, res.Match.ID)
		}
	}

	if f.tokens > 0 {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("--tokens needs JWT_SECRET to be set")
		}
		for i := 1; i <= f.tokens && i <= f.profiles; i++ {
			id := fmt.Sprintf("user%d", i)
			token, err := httpapi.IssueToken(cfg.Auth.JWTSecret, id, f.tokenTTL)
			if err != nil {
				return fmt.Errorf("failed to issue token for %s: %w", id, err)
			}
			cmd.Printf("%s\t%s\n", id, token)
		}
	}

	cmd.Println("Seeding completed.")
	return nil
}
