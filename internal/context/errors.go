package context

import "github.com/pkg/errors"

// ErrDataStackUnderflow and ErrRetainStackUnderflow are the two
// hosted-language-visible error codes of spec.md §6/§7
// (ERROR_DS_UNDERFLOW / ERROR_RS_UNDERFLOW).
var (
	ErrDataStackUnderflow   = errors.New("factorcore: datastack underflow")
	ErrRetainStackUnderflow = errors.New("factorcore: retainstack underflow")
)
