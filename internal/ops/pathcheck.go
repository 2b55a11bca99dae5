package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/errors"
)

// ExportExt is the only extension export and import accept.
const ExportExt = ".jsonl"

// PathCheckMode indicates whether the path check is for reading or writing.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// PathPolicy decides which files export and import may touch.
//
// A path is accepted when it has the .jsonl extension, contains no ".."
// component, sits directly in ExportsDir or one of AllowedDirs, and is not a
// symlink. Files in subdirectories are rejected so that no intermediate
// directory can be swapped between the check and the open; the final
// component is opened with O_NOFOLLOW.
type PathPolicy struct {
	ExportsDir  string
	AllowedDirs []string
	AllowUnsafe bool // skips the directory rule, never the symlink rule
}

// NewPathPolicy builds the policy for a data directory and config.
// Relative allowed_paths entries are ignored.
func NewPathPolicy(baseDir string, cfg *config.Config) PathPolicy {
	p := PathPolicy{ExportsDir: filepath.Join(baseDir, "exports")}
	if cfg == nil {
		return p
	}
	p.AllowUnsafe = cfg.AllowUnsafePaths
	for _, d := range cfg.AllowedPaths {
		if filepath.IsAbs(d) {
			p.AllowedDirs = append(p.AllowedDirs, filepath.Clean(d))
		}
	}
	return p
}

// Check validates path for the given mode.
func (p PathPolicy) Check(path string, mode PathCheckMode) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ExportExt {
		return errors.NewInvalidRequest("path must have " + ExportExt + " extension")
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if !p.AllowUnsafe {
		dirs, err := p.dirs()
		if err != nil {
			return err
		}
		parent := filepath.Dir(abs)
		if !directlyIn(parent, dirs) {
			return errors.NewInvalidRequest(
				fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v", dirs))
		}
		if isSymlink(parent) {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(abs) {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// DefaultExportPath returns <exports>/<nickname>-<timestamp>.jsonl.
func (p PathPolicy) DefaultExportPath(nickname, stamp string) string {
	name := fmt.Sprintf("%s-%s%s", SanitizeForFilename(nickname), stamp, ExportExt)
	return filepath.Join(p.ExportsDir, name)
}

// dirs returns the accepted directories, absolute, with symlinked entries
// resolved to their targets.
func (p PathPolicy) dirs() ([]string, error) {
	all := append([]string{p.ExportsDir}, p.AllowedDirs...)
	out := make([]string, 0, len(all))
	for _, d := range all {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(abs) {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		out = append(out, abs)
	}
	return out, nil
}

func directlyIn(parent string, dirs []string) bool {
	parent = filepath.Clean(parent)
	for _, d := range dirs {
		if parent == filepath.Clean(d) {
			return true
		}
	}
	return false
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// containsTraversal reports whether any component of path is "..".
func containsTraversal(path string) bool {
	split := func(r rune) bool { return r == '/' || r == filepath.Separator }
	for _, part := range strings.FieldsFunc(path, split) {
		if part == ".." {
			return true
		}
	}
	return false
}

// SanitizeForFilename makes s safe to use as a single file name component.
// Nicknames are free text, so separators, ".." and control characters are
// replaced or dropped.
func SanitizeForFilename(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-", "..", "-").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	s = b.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}
