package inventory

import (
	"errors"
	"fmt"
)

// ErrFetch matches every *FetchError via errors.Is.
var ErrFetch = errors.New("inventory fetch failed")

type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindSign         ErrorKind = "sign"
	KindTransport    ErrorKind = "transport"
	KindStatus       ErrorKind = "status"
	KindParse        ErrorKind = "parse"
)

// FetchError is returned for any failure to obtain an inventory record. It is
// fatal for the storefront section of a render.
type FetchError struct {
	ProductID  string
	Kind       ErrorKind
	StatusCode int // set for KindStatus, and for KindParse when a response arrived
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("inventory fetch for %q: partner returned status %d", e.ProductID, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("inventory fetch for %q: %s: %v", e.ProductID, e.Kind, e.Err)
		}
		return fmt.Sprintf("inventory fetch for %q: %s", e.ProductID, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }
