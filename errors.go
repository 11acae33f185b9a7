package relay

import "github.com/bluenviron/rtsprelay/pkg/liberrors"

func errConflict(path string) error {
	return liberrors.ErrConflict{Path: path}
}

func errNotFound(path string) error {
	return liberrors.ErrNotFound{Path: path}
}
