package model

import "errors"

// ErrNotFound is returned by every repository when a row does not exist.
// It lives here so the driver packages and the storage facade can share
// one sentinel without importing each other.
var ErrNotFound = errors.New("not found")
