package domain

import "strings"

// PlayerIdentity is the verified identity attached to a connection.
// UUID is the stable external key; ID is the numeric handle used for score joins.
type PlayerIdentity struct {
	ID          int64  `json:"id"`
	UUID        string `json:"uuid"`
	DisplayName string `json:"displayName"`
}

// Valid reports whether both identifiers are set.
func (p PlayerIdentity) Valid() bool {
	return p.ID > 0 && strings.TrimSpace(p.UUID) != ""
}

// Same compares identities by UUID.
func (p PlayerIdentity) Same(o PlayerIdentity) bool {
	return strings.TrimSpace(p.UUID) == strings.TrimSpace(o.UUID)
}

// Name returns DisplayName, falling back to the UUID.
func (p PlayerIdentity) Name() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	return p.UUID
}
