//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/nami/internal/errors"
)

// createNoFollow opens path for writing. Windows has no O_NOFOLLOW;
// PathPolicy has already rejected symlinks.
func createNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openNoFollowRead opens path read-only.
func openNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NewFileNotFound(path)
	}
	return f, err
}
