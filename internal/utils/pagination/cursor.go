package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// Cursor is the opaque keyset pagination state we encode/decode.
// ID + Unix (in millis) establish a stable position in a
// (timestamp DESC, id DESC) ordering.
type Cursor struct {
	ID   string `json:"id"`
	Unix int64  `json:"ts,omitempty"`
}

// After builds the cursor that resumes right after an item.
func After(id string, at time.Time) Cursor {
	return Cursor{ID: id, Unix: at.UnixMilli()}
}

func (c Cursor) IsZero() bool { return c.ID == "" && c.Unix == 0 }

func (c Cursor) Time() time.Time { return time.UnixMilli(c.Unix).UTC() }

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MustEncode is Encode for cursors built from known-good values.
func MustEncode(c Cursor) string {
	s, err := Encode(c)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, svcErr.Validation("invalid pagination token")
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return Cursor{}, svcErr.Validation("invalid pagination token")
	}
	return c, nil
}

// PageSize is the default/maximum pair applied by ClampPageSize.
type PageSize struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int, cfg PageSize) int {
	size := value
	if size <= 0 {
		size = cfg.Default
	}
	if cfg.Max > 0 && size > cfg.Max {
		size = cfg.Max
	}
	if size <= 0 {
		size = 1
	}
	return size
}
