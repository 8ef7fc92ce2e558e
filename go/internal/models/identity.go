package models

// Identity is the authenticated user as supplied by the authentication provider.
type Identity struct {
	UID   string `json:"uid,omitempty" yaml:"uid"`
	Email string `json:"email,omitempty" yaml:"email"`
}

// Key returns the stable value that scopes bid history and notification
// queries: the email when present, otherwise the uid.
func (i Identity) Key() string {
	if i.Email != "" {
		return i.Email
	}
	return i.UID
}

// Known reports whether an identity is available.
func (i Identity) Known() bool {
	return i.Key() != ""
}
