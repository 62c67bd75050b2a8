package blip

import (
	"sync/atomic"

	"github.com/casualjim/blip/pkg/uuidx"
)

// Identity stands for the user or application on whose behalf requests are
// made. It is valid only for the session that created it.
type Identity struct {
	id         string
	session    string
	authorized atomic.Bool
}

// CreateIdentity returns a new, unauthorized identity owned by the session.
func (s *Session) CreateIdentity() *Identity {
	return &Identity{id: uuidx.NewString(), session: s.id}
}

func (i *Identity) ID() string {
	return i.id
}

// IsAuthorized reports whether an authorization request for this identity
// succeeded and was not revoked since.
func (i *Identity) IsAuthorized() bool {
	return i.authorized.Load()
}

func (s *Session) owns(i *Identity) error {
	if i == nil {
		return nil
	}
	if i.session != s.id {
		return ErrForeignIdentity
	}
	return nil
}

func identityID(i *Identity) string {
	if i == nil {
		return ""
	}
	return i.id
}
