package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsDuplicateKeyErr reports a unique constraint violation on any supported
// dialect, with or without gorm's error translation.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value violates unique constraint"): // postgres
		return true
	case strings.Contains(msg, "Error 1062"): // mysql
		return true
	case strings.Contains(msg, "UNIQUE constraint failed"): // sqlite
		return true
	default:
		return false
	}
}

// ViolatesConstraint reports a unique violation naming the given constraint,
// or on sqlite, which reports columns instead of names, the given column.
// When gorm translated the driver error away every unique violation matches.
func ViolatesConstraint(err error, constraint, column string) bool {
	if !IsDuplicateKeyErr(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName == constraint
	}

	msg := err.Error()
	if msg == gorm.ErrDuplicatedKey.Error() {
		return true
	}
	if constraint != "" && strings.Contains(msg, constraint) {
		return true
	}
	return column != "" && strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
