package headers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bluenviron/rtsprelay/pkg/base"
)

// Authorization is an Authorization header. Only the Basic scheme is
// supported; Digest credentials are rejected as unsupported.
type Authorization struct {
	// basic user
	BasicUser string

	// basic password
	BasicPass string
}

// Read decodes an Authorization header.
func (h *Authorization) Read(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	v0 := v[0]

	if !strings.HasPrefix(v0, "Basic ") {
		return fmt.Errorf("unsupported authorization scheme")
	}

	v0 = v0[len("Basic "):]

	tmp, err := base64.StdEncoding.DecodeString(v0)
	if err != nil {
		return fmt.Errorf("invalid value")
	}

	tmp2 := strings.SplitN(string(tmp), ":", 2)
	if len(tmp2) != 2 {
		return fmt.Errorf("invalid value")
	}

	h.BasicUser, h.BasicPass = tmp2[0], tmp2[1]
	return nil
}

// Write encodes an Authorization header.
func (h Authorization) Write() base.HeaderValue {
	response := base64.StdEncoding.EncodeToString([]byte(h.BasicUser + ":" + h.BasicPass))
	return base.HeaderValue{"Basic " + response}
}
