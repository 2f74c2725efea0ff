package repository

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned by writes that target a row that does not exist.
// Reads return a nil record instead.
var ErrNotFound = errors.New("record not found")

// Text conversion helpers

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func nullTextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// Timestamp conversion helpers

func timestamptzToTime(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
