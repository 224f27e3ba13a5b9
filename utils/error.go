package utils

import "errors"

var (
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorLockNotObtained is returned when the distributed stock lock is
	// held by another writer. Callers may retry after a short delay.
	ErrorLockNotObtained = errors.New("could not obtain stock lock")
)
