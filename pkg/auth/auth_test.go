package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtsprelay/pkg/base"
	"github.com/bluenviron/rtsprelay/pkg/headers"
)

func TestValidatorAcceptsCorrectCredentials(t *testing.T) {
	v := NewValidator("admin", "secret", "rtsp")

	req := &base.Request{
		Header: base.Header{
			"Authorization": headers.Authorization{BasicUser: "admin", BasicPass: "secret"}.Write(),
		},
	}

	require.NoError(t, v.Validate(req))
}

func TestValidatorRejectsWrongCredentials(t *testing.T) {
	v := NewValidator("admin", "secret", "rtsp")

	req := &base.Request{
		Header: base.Header{
			"Authorization": headers.Authorization{BasicUser: "admin", BasicPass: "wrong"}.Write(),
		},
	}

	require.Error(t, v.Validate(req))
}

func TestValidatorRejectsMissingHeader(t *testing.T) {
	v := NewValidator("admin", "secret", "rtsp")

	req := &base.Request{Header: base.Header{}}
	require.Error(t, v.Validate(req))
}

func TestValidatorChallenge(t *testing.T) {
	v := NewValidator("admin", "secret", "myrealm")
	require.Equal(t, `Basic realm="myrealm"`, v.Challenge()[0])
}
