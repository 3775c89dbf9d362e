package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// isDuplicateKey reports a unique-constraint violation on either MySQL or SQLite.
// gorm translates it when the dialector supports TranslateError; the string checks cover the rest.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// supportsRowLock reports whether SELECT ... FOR UPDATE is understood by the dialect
func supportsRowLock(db *gorm.DB) bool {
	return db.Dialector.Name() != "sqlite"
}
