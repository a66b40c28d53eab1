package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a conditional write lost the race, e.g.
	// accepting an order another driver already claimed.
	ErrConflict = errors.New("conditional write conflict")
)
