// Package auth implements RTSP Basic authentication challenge/response.
//
// Digest authentication is intentionally not implemented: the relay
// only ever talks to encoders and players on a trusted network segment,
// where Basic auth over the transport is enough.
package auth

import (
	"fmt"

	"github.com/bluenviron/rtsprelay/pkg/base"
	"github.com/bluenviron/rtsprelay/pkg/headers"
)

// Validator checks Basic credentials sent by a client against a fixed
// user/pass pair and produces the matching WWW-Authenticate challenge.
type Validator struct {
	user  string
	pass  string
	realm string
}

// NewValidator allocates a Validator for the given realm.
func NewValidator(user string, pass string, realm string) *Validator {
	return &Validator{user: user, pass: pass, realm: realm}
}

// Challenge returns the WWW-Authenticate header value to send alongside
// a 401 response.
func (va *Validator) Challenge() base.HeaderValue {
	return headers.WWWAuthenticate{Realm: va.realm}.Write()
}

// Validate checks the Authorization header of req against the
// configured credentials.
func (va *Validator) Validate(req *base.Request) error {
	v, ok := req.Header["Authorization"]
	if !ok {
		return fmt.Errorf("authorization header not provided")
	}

	var auth headers.Authorization
	if err := auth.Read(v); err != nil {
		return err
	}

	if auth.BasicUser != va.user || auth.BasicPass != va.pass {
		return fmt.Errorf("wrong credentials")
	}

	return nil
}
