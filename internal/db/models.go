package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matching/internal/domain"
)

// Profile is the stored profile record. Filters always read the stored
// values; the Show* flags only decide what View exposes.
//
// Indexes:
//   - idx_profiles_feed(created_at DESC, id DESC)
//     Drives the candidate feed keyset scan.
type Profile struct {
	ID             string `gorm:"primaryKey;size:64;index:idx_profiles_feed,priority:2,sort:desc"`
	DisplayName    string `gorm:"size:128;not null"`
	Bio            string `gorm:"size:1024"`
	Age            int    `gorm:"not null"`
	GenderIdentity string `gorm:"size:32;not null"`
	Orientation    string `gorm:"size:32;not null"`
	Pronouns       string `gorm:"size:32"`
	Lat            *float64
	Lon            *float64
	City           string `gorm:"size:128"`

	ProfileVisible     bool `gorm:"not null"`
	ShowAge            bool `gorm:"not null"`
	ShowLocation       bool `gorm:"not null"`
	ShowGenderIdentity bool `gorm:"not null"`
	ShowOrientation    bool `gorm:"not null"`
	ShowPronouns       bool `gorm:"not null"`

	CreatedAt time.Time `gorm:"index:idx_profiles_feed,priority:1,sort:desc"`
	UpdatedAt time.Time
}

// BeforeCreate keeps created_at at millisecond precision so feed cursors
// compare exactly.
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.NowFunc()
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Millisecond)
	return nil
}

// Location returns the stored coordinates, or nil when none are set.
func (p *Profile) Location() *domain.Location {
	if p.Lat == nil || p.Lon == nil {
		return nil
	}
	return &domain.Location{Lat: *p.Lat, Lon: *p.Lon, City: p.City}
}

// IsVisible reports the owner's visibility flag for field.
func (p *Profile) IsVisible(field domain.ProfileField) bool {
	switch field {
	case domain.FieldAge:
		return p.ShowAge
	case domain.FieldLocation:
		return p.ShowLocation
	case domain.FieldGenderIdentity:
		return p.ShowGenderIdentity
	case domain.FieldOrientation:
		return p.ShowOrientation
	case domain.FieldPronouns:
		return p.ShowPronouns
	}
	return false
}

// View projects the profile for another user, dropping hidden fields.
func (p *Profile) View() domain.ProfileView {
	v := domain.ProfileView{
		UserID:      p.ID,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		CreatedAt:   p.CreatedAt,
	}
	if p.ShowAge {
		age := p.Age
		v.Age = &age
	}
	if p.ShowLocation {
		v.Location = p.Location()
	}
	if p.ShowGenderIdentity && p.GenderIdentity != "" {
		g := p.GenderIdentity
		v.GenderIdentity = &g
	}
	if p.ShowOrientation && p.Orientation != "" {
		o := p.Orientation
		v.Orientation = &o
	}
	if p.ShowPronouns && p.Pronouns != "" {
		pr := p.Pronouns
		v.Pronouns = &pr
	}
	return v
}

const (
	InterestPending  = "pending"
	InterestConsumed = "consumed"
)

// Interest is a directed like. Composite PK (FromID, ToID) keeps one row
// per direction; a consumed row belongs to a match and can't be withdrawn.
//
// Indexes:
//   - idx_interests_received(to_id, status, updated_at DESC, from_id)
//     "Who liked you" lists and counts.
type Interest struct {
	FromID    string    `gorm:"primaryKey;size:64"`
	ToID      string    `gorm:"primaryKey;size:64;index:idx_interests_received,priority:1"`
	Kind      string    `gorm:"size:16;not null"`
	Status    string    `gorm:"size:16;not null;default:pending;index:idx_interests_received,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_interests_received,priority:3,sort:desc"`
}

// PairLock is the row every writer of a user pair locks first.
type PairLock struct {
	UserLow  string `gorm:"primaryKey;size:64"`
	UserHigh string `gorm:"primaryKey;size:64"`
}

// Match is the confirmed mutual relationship of a pair. The unique index
// guarantees one row per unordered pair, ever.
type Match struct {
	ID          string    `gorm:"primaryKey;size:36"`
	UserLow     string    `gorm:"size:64;not null;uniqueIndex:idx_matches_pair,priority:1"`
	UserHigh    string    `gorm:"size:64;not null;uniqueIndex:idx_matches_pair,priority:2;index"`
	Origin      string    `gorm:"size:16;not null"`
	Active      bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UnmatchedAt *time.Time
	UnmatchedBy string `gorm:"size:64"`
}

func (m *Match) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (m *Match) Pair() domain.Pair { return domain.Pair{Low: m.UserLow, High: m.UserHigh} }

// Conversation is created with its match. NextSeq is the last sequence
// number handed out; LastMessage* is the denormalized list pointer.
type Conversation struct {
	MatchID           string `gorm:"primaryKey;size:36"`
	Frozen            bool   `gorm:"not null;default:false"`
	NextSeq           uint64 `gorm:"not null;default:0"`
	LastMessageID     string `gorm:"size:36"`
	LastMessage       string `gorm:"type:text"`
	LastMessageSender string `gorm:"size:64"`
	LastMessageAt     *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// Message is immutable once written. Seq is unique per conversation.
type Message struct {
	ID        string    `gorm:"primaryKey;size:36"`
	MatchID   string    `gorm:"size:36;not null;uniqueIndex:idx_messages_seq,priority:1"`
	Seq       uint64    `gorm:"not null;uniqueIndex:idx_messages_seq,priority:2"`
	SenderID  string    `gorm:"size:64;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MessageRead is one member of a message's readBy set. Rows are never
// deleted.
type MessageRead struct {
	MessageID string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"primaryKey;size:64;index"`
	MatchID   string    `gorm:"size:36;not null;index"`
	ReadAt    time.Time `gorm:"not null"`
}

// ConversationTombstone hides a conversation's history up to DeletedAt
// for one participant only.
type ConversationTombstone struct {
	MatchID   string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"primaryKey;size:64"`
	DeletedAt time.Time `gorm:"not null"`
	// UpToSeq is the last sequence number hidden from UserID.
	UpToSeq uint64 `gorm:"not null"`
}

// Pass suppresses a candidate from the passer's feed. A nil ExpiresAt
// never expires.
type Pass struct {
	UserID    string `gorm:"primaryKey;size:64"`
	PassedID  string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Block is directed but always checked in both directions.
type Block struct {
	BlockerID string    `gorm:"primaryKey;size:64"`
	BlockedID string    `gorm:"primaryKey;size:64;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Report is append-only apart from its forward-only Status.
type Report struct {
	ID         string    `gorm:"primaryKey;size:36"`
	ReporterID string    `gorm:"size:64;not null;index"`
	TargetID   string    `gorm:"size:64;not null;index"`
	TargetKind string    `gorm:"size:16;not null"`
	Reason     string    `gorm:"size:1000;not null"`
	Status     string    `gorm:"size:16;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Profile{},
		&Interest{},
		&PairLock{},
		&Match{},
		&Conversation{},
		&Message{},
		&MessageRead{},
		&ConversationTombstone{},
		&Pass{},
		&Block{},
		&Report{},
	}
}
