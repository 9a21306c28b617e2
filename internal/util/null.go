package util

import (
	"database/sql"
	"time"
)

// NullString converts a string to sql.NullString.
// Empty strings are treated as invalid (null).
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// NullInt converts a *int to sql.NullInt64.
// Nil pointers are treated as invalid (null).
func NullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// NullIndex converts an index to sql.NullInt64, treating negative values as null.
func NullIndex(i int) sql.NullInt64 {
	if i < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

// IndexFromNull is the inverse of NullIndex.
func IndexFromNull(n sql.NullInt64) int {
	if !n.Valid {
		return -1
	}
	return int(n.Int64)
}

// NullTime formats a *time.Time as a nullable RFC3339 string.
func NullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// TimeFromNull parses a nullable timestamp column.
func TimeFromNull(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := ParseTime(ns.String)
	return &t
}
