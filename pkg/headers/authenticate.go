// Package headers contains various RTSP headers.
package headers

import "github.com/bluenviron/rtsprelay/pkg/base"

// WWWAuthenticate is a WWW-Authenticate header. Only the Basic scheme
// is supported.
type WWWAuthenticate struct {
	// realm advertised to the client
	Realm string
}

// Write encodes a WWW-Authenticate header.
func (h WWWAuthenticate) Write() base.HeaderValue {
	return base.HeaderValue{"Basic realm=\"" + h.Realm + "\""}
}
