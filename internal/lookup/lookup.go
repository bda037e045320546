// Package lookup queries the external reference services a record is
// checked against.
package lookup

import (
	"context"
	"errors"
	"net/url"

	"github.com/snac-tools/eacsupp/internal/fetch"
)

// JSONGetter issues a GET and decodes its JSON body
type JSONGetter interface {
	GetJSON(ctx context.Context, base string, params url.Values, v any) error
}

// Answer is a checker's reply for one heading. Degraded marks a negative
// that stands in for an HTTP error status rather than an empty result set.
type Answer struct {
	Present  bool
	Degraded bool
}

// Checker answers whether a service holds at least one item for a heading
type Checker interface {
	Name() string
	Present(ctx context.Context, heading string) (bool, error)
	Check(ctx context.Context, heading string) (Answer, error)
}

// degradeStatus turns an HTTP error status into a degraded "not present".
// Anything else (transport failure, bad JSON) is passed through.
func degradeStatus(err error) (Answer, error) {
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		return Answer{Degraded: true}, nil
	}
	return Answer{}, err
}
