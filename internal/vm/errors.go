package vm

import "github.com/pkg/errors"

// ErrInvalidBecome mirrors the source's critical_error on a become() call
// whose two arrays differ in length (spec.md §7 "Invalid become").
var ErrInvalidBecome = errors.New("vm: become requires arrays of equal length")
