package repository

import (
	stderrors "errors"

	errors "github.com/goliatone/go-errors"
)

// NotFound builds the distinguishable "missing entity" error returned by
// identifier-addressed lookups. FindOne/FindMany never return it; absence
// there is a normal empty result.
func NotFound(entity, id string) error {
	return errors.New(entity+" not found: "+id, errors.CategoryNotFound)
}

// ConfigError builds the fatal configuration error raised at construction
// time (missing identity column, empty table description, bad handlers).
func ConfigError(msg string) error {
	return errors.New(msg, errors.CategoryValidation)
}

// IsNotFound reports whether err is a missing-entity error from this layer.
func IsNotFound(err error) bool {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Category == errors.CategoryNotFound
	}
	return false
}

// IsConfigError reports whether err is a construction-time configuration error.
func IsConfigError(err error) bool {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Category == errors.CategoryValidation
	}
	return false
}
