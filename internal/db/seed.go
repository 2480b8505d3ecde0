package db

import (
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedOptions controls the demo dataset.
type SeedOptions struct {
	Profiles  int
	Interests int // one-way interests per profile
	Seed      int64
}

func DefaultSeedOptions() SeedOptions {
	return SeedOptions{Profiles: 20, Interests: 6, Seed: time.Now().UnixNano()}
}

var (
	seedGenders      = []string{"woman", "man", "non-binary"}
	seedOrientations = []string{"straight", "gay", "bisexual", "pansexual"}
	seedPronouns     = []string{"she/her", "he/him", "they/them"}
	seedCities       = []struct {
		Name     string
		Lat, Lon float64
	}{
		{"London", 51.5074, -0.1278},
		{"Manchester", 53.4808, -2.2426},
		{"Bristol", 51.4545, -2.5879},
		{"Edinburgh", 55.9533, -3.1883},
	}
)

// SeedTestData resets the database and fills it with demo profiles and
// one-way interests. Matches are not seeded here: they only come out of
// the matching registry.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB, opts SeedOptions) error {
	r := rand.New(rand.NewSource(opts.Seed))

	if err := ResetTables(db); err != nil {
		return err
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	profiles := make([]Profile, 0, opts.Profiles)
	for i := 1; i <= opts.Profiles; i++ {
		city := seedCities[r.Intn(len(seedCities))]
		lat := city.Lat + (r.Float64()-0.5)*0.1
		lon := city.Lon + (r.Float64()-0.5)*0.1

		profiles = append(profiles, Profile{
			ID:                 fmt.Sprintf("user%d", i),
			DisplayName:        fmt.Sprintf("User %d", i),
			Age:                18 + r.Intn(40),
			GenderIdentity:     seedGenders[r.Intn(len(seedGenders))],
			Orientation:        seedOrientations[r.Intn(len(seedOrientations))],
			Pronouns:           seedPronouns[r.Intn(len(seedPronouns))],
			Lat:                &lat,
			Lon:                &lon,
			City:               city.Name,
			ProfileVisible:     i%10 != 0,
			ShowAge:            true,
			ShowLocation:       r.Intn(4) != 0,
			ShowGenderIdentity: true,
			ShowOrientation:    r.Intn(3) != 0,
			ShowPronouns:       true,
			CreatedAt:          base.Add(-time.Duration(i) * time.Minute),
		})
	}
	if err := db.CreateInBatches(&profiles, 100).Error; err != nil {
		return fmt.Errorf("failed to seed profiles: %w", err)
	}

	// one-way interests only, so no pair is left half-matched
	interests := make([]Interest, 0, opts.Profiles*opts.Interests)
	for i := 1; i <= opts.Profiles; i++ {
		for j := 0; j < opts.Interests; j++ {
			to := r.Intn(opts.Profiles) + 1
			if to <= i {
				continue
			}
			kind := "like"
			if r.Intn(5) == 0 {
				kind = "super_like"
			}
			interests = append(interests, Interest{
				FromID: fmt.Sprintf("user%d", i),
				ToID:   fmt.Sprintf("user%d", to),
				Kind:   kind,
				Status: InterestPending,
			})
		}
	}
	if len(interests) > 0 {
		err := db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&interests, 100).Error
		if err != nil {
			return fmt.Errorf("failed to seed interests: %w", err)
		}
	}

	return nil
}

// ResetTables deletes every row of every table, children first.
func ResetTables(db *gorm.DB) error {
	tables := []string{
		"message_reads", "messages", "conversation_tombstones", "conversations",
		"matches", "pair_locks", "interests", "passes", "blocks", "reports", "profiles",
	}
	for _, t := range tables {
		if err := db.Exec("DELETE FROM " + t).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}
	return nil
}
