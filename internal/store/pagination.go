package store

import (
	"encoding/base64"

	"github.com/google/uuid"

	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// PageRequest selects one page of the results log.
type PageRequest struct {
	Limit int
	// Cursor is a previous Page.NextCursor. Empty starts at the newest result.
	Cursor string
}

func (r PageRequest) size() int {
	switch {
	case r.Limit <= 0:
		return defaultPageSize
	case r.Limit > maxPageSize:
		return maxPageSize
	}
	return r.Limit
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// encodeCursor hides the id of the last result handed out.
func encodeCursor(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// decodeCursor returns the result id inside cursor, or "" for no cursor.
func decodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", domainerrors.Validationf("invalid cursor %q", cursor)
	}
	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return "", domainerrors.Validationf("invalid cursor %q", cursor)
	}
	return id.String(), nil
}
