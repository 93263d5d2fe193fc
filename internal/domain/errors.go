package domain

import "errors"

var (
	ErrEntryNotFound = errors.New("dream entry not found")
	ErrEntryExists   = errors.New("dream entry already exists")
)
