package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Fragments emitted by the drivers the dialect switch supports when a
// unique constraint is violated: postgres (SQLSTATE 23505), mysql
// (error 1062) and sqlite (error 2067).
var duplicateKeyFragments = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err stems from a unique-constraint
// violation, whether gorm already translated it or the raw driver
// message leaked through.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	for _, fragment := range duplicateKeyFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
