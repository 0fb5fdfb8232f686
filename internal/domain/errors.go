package domain

import "errors"

// ErrNotFound is returned by ledger and host-state lookups that miss.
var ErrNotFound = errors.New("record not found")
