package supervisor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gluk-w/webtail/internal/message"
)

// HeaderApplication carries the JSON-encoded identity on the upgrade request.
const HeaderApplication = "Application"

var (
	ErrMissingIdentity = errors.New("missing Application header")
	ErrInvalidIdentity = errors.New("invalid Application header")
)

// IdentityFromHeader extracts the session identity from the upgrade request
// headers. The two failure classes are distinguishable with errors.Is.
func IdentityFromHeader(h http.Header) (message.Identity, error) {
	raw := h.Get(HeaderApplication)
	if raw == "" {
		return message.Identity{}, ErrMissingIdentity
	}
	id, err := message.ParseIdentity(raw)
	if err != nil {
		return message.Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return id, nil
}
