package access

import "crypto/tls"

// Anonymous is the identity of a caller without a verified certificate.
const Anonymous = "anonymous"

// Identity is what the router knows about a caller.
type Identity struct {
	Name       string
	Verified   bool
	Privileged bool
}

// Resolve derives the caller's identity from the connection state. A nil
// state means the plaintext port, which is always read-only.
func (a *AllowList) Resolve(state *tls.ConnectionState) Identity {
	if state == nil || len(state.VerifiedChains) == 0 || len(state.VerifiedChains[0]) == 0 {
		return Identity{Name: Anonymous}
	}
	leaf := state.VerifiedChains[0][0]
	name := leaf.Subject.CommonName
	if name == "" {
		return Identity{Name: Anonymous}
	}
	return Identity{
		Name:       name,
		Verified:   true,
		Privileged: a.Allows(name),
	}
}
