// Package domain holds the value types shared by the matching, feed,
// conversation and safety packages.
package domain

import (
	"strings"
	"time"
)

// InterestKind is the strength of a one-directional interest signal.
type InterestKind string

const (
	KindLike      InterestKind = "like"
	KindSuperLike InterestKind = "super_like"
)

// ParseInterestKind accepts the canonical names plus a few client spellings.
func ParseInterestKind(s string) (InterestKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like":
		return KindLike, true
	case "super_like", "superlike", "super-like":
		return KindSuperLike, true
	}
	return "", false
}

func (k InterestKind) Valid() bool { return k == KindLike || k == KindSuperLike }

// Stronger reports whether k outranks other. Used to upgrade a pending
// Like to a SuperLike without ever downgrading.
func (k InterestKind) Stronger(other InterestKind) bool {
	return k == KindSuperLike && other != KindSuperLike
}

// Pair is an unordered pair of users stored in canonical order.
type Pair struct {
	Low  string
	High string
}

func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

func (p Pair) Has(userID string) bool { return p.Low == userID || p.High == userID }

// Other returns the counterpart of userID. The result is undefined when
// userID is not part of the pair.
func (p Pair) Other(userID string) string {
	if p.Low == userID {
		return p.High
	}
	return p.Low
}

func (p Pair) String() string { return p.Low + ":" + p.High }

// ProfileField names a profile attribute with its own visibility toggle.
type ProfileField string

const (
	FieldAge            ProfileField = "age"
	FieldLocation       ProfileField = "location"
	FieldGenderIdentity ProfileField = "gender_identity"
	FieldOrientation    ProfileField = "orientation"
	FieldPronouns       ProfileField = "pronouns"
)

type Location struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	City string  `json:"city,omitempty"`
}

// ProfileView is what a viewer is allowed to see of a profile. Hidden
// fields are nil.
type ProfileView struct {
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Bio            string    `json:"bio,omitempty"`
	Age            *int      `json:"age,omitempty"`
	Location       *Location `json:"location,omitempty"`
	GenderIdentity *string   `json:"gender_identity,omitempty"`
	Orientation    *string   `json:"orientation,omitempty"`
	Pronouns       *string   `json:"pronouns,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageView is a stored message as returned to participants.
type MessageView struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	Seq       uint64    `json:"seq"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ReadBy    []string  `json:"read_by"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	MatchID           string     `json:"match_id"`
	CounterpartID     string     `json:"counterpart_id"`
	Active            bool       `json:"active"`
	Frozen            bool       `json:"frozen"`
	LastMessage       string     `json:"last_message,omitempty"`
	LastMessageSender string     `json:"last_message_sender,omitempty"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	Unread            int64      `json:"unread"`
}
