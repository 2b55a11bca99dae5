//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/nami/internal/errors"
)

// createNoFollow opens path for writing without following a symlink in the
// final component. Directory components are covered by PathPolicy.
func createNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return openNoFollow(path, flag, perm)
}

// openNoFollowRead opens path read-only without following a symlink in the
// final component.
func openNoFollowRead(path string) (*os.File, error) {
	return openNoFollow(path, os.O_RDONLY, 0)
}

func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest("path must not be a symlink")
	case stderrors.Is(err, syscall.ENOENT) && flag&os.O_CREATE == 0:
		return nil, errors.NewFileNotFound(path)
	default:
		return nil, err
	}
}
