package bidrank

import "errors"

var (
	// ErrNoIdentity is returned when a refresh is requested before an identity is known.
	ErrNoIdentity = errors.New("bid history disabled: no identity")
	// ErrStopped is returned by a poller that has been torn down.
	ErrStopped = errors.New("bid poller stopped")
)
