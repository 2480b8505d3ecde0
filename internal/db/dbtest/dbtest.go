// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/muzz-matching/internal/db"
)

// Open returns a fresh database private to t. One connection is shared by
// every caller, so writers are serialized the way a single SQLite writer
// would serialize them anyway.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// ProfileOption tweaks a profile built by Profile.
type ProfileOption func(*db.Profile)

// Profile inserts a visible profile created at `at` with every field shown.
func Profile(t testing.TB, gdb *gorm.DB, id string, at time.Time, opts ...ProfileOption) *db.Profile {
	t.Helper()
	p := &db.Profile{
		ID:                 id,
		DisplayName:        strings.ToUpper(id[:1]) + id[1:],
		Age:                30,
		GenderIdentity:     "woman",
		Orientation:        "bisexual",
		Pronouns:           "she/her",
		ProfileVisible:     true,
		ShowAge:            true,
		ShowLocation:       true,
		ShowGenderIdentity: true,
		ShowOrientation:    true,
		ShowPronouns:       true,
		CreatedAt:          at,
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, gdb.Create(p).Error)
	return p
}

func WithAge(age int) ProfileOption {
	return func(p *db.Profile) { p.Age = age }
}

func WithGender(g string) ProfileOption {
	return func(p *db.Profile) { p.GenderIdentity = g }
}

func WithOrientation(o string) ProfileOption {
	return func(p *db.Profile) { p.Orientation = o }
}

func WithLocation(lat, lon float64) ProfileOption {
	return func(p *db.Profile) { p.Lat, p.Lon = &lat, &lon }
}

func Hidden() ProfileOption {
	return func(p *db.Profile) { p.ProfileVisible = false }
}

// HideAll keeps the profile in the feed but hides every optional field.
func HideAll() ProfileOption {
	return func(p *db.Profile) {
		p.ShowAge, p.ShowLocation, p.ShowGenderIdentity, p.ShowOrientation, p.ShowPronouns = false, false, false, false, false
	}
}
