package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"

	"barter/internal/constants"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
	// ErrStale reports a conditional update that lost against a concurrent writer.
	ErrStale = errors.New("stale row")
)

// isUniqueViolation matches UNIQUE and PRIMARY KEY constraint failures, which
// is how a second registration of the same email surfaces.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return true
	}
	return false
}

func GenerateID(prefix string) (string, error) {
	b := make([]byte, constants.IDRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}
