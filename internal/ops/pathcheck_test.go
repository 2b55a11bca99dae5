package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/errors"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
}

func TestNewPathPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{"/srv/backups/", "relative/dir"}
	cfg.AllowUnsafePaths = true

	p := NewPathPolicy("/home/u/.nami", cfg)
	if p.ExportsDir != filepath.Join("/home/u/.nami", "exports") {
		t.Errorf("ExportsDir = %q", p.ExportsDir)
	}
	if len(p.AllowedDirs) != 1 || p.AllowedDirs[0] != "/srv/backups" {
		t.Errorf("AllowedDirs = %v, want only the absolute entry", p.AllowedDirs)
	}
	if !p.AllowUnsafe {
		t.Error("AllowUnsafe not carried over")
	}

	if p := NewPathPolicy("/x", nil); p.AllowUnsafe || len(p.AllowedDirs) != 0 {
		t.Errorf("nil config policy = %+v", p)
	}
}

func TestCheck_TraversalRejected(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	err := p.Check(p.ExportsDir+"/../escape.jsonl", PathCheckWrite)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestCheck_ExtensionRequired(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	for _, name := range []string{"data.json", "data.txt", "data"} {
		if err := p.Check(filepath.Join(p.ExportsDir, name), PathCheckWrite); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("%s: expected INVALID_REQUEST, got %v", name, err)
		}
	}
}

func TestCheck_EmptyPath(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	if err := p.Check("", PathCheckRead); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestCheck_ExportsDirAccepted(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	path := filepath.Join(p.ExportsDir, "out.jsonl")
	if err := p.Check(path, PathCheckWrite); err != nil {
		t.Fatalf("write check: %v", err)
	}
	writeFile(t, path)
	if err := p.Check(path, PathCheckRead); err != nil {
		t.Fatalf("read check: %v", err)
	}
}

func TestCheck_DirectoryRestriction(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	other := filepath.Join(t.TempDir(), "out.jsonl")
	if err := p.Check(other, PathCheckWrite); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST outside exports dir, got %v", err)
	}
}

func TestCheck_AllowUnsafe(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir(), AllowUnsafe: true}
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	writeFile(t, in)

	if err := p.Check(in, PathCheckRead); err != nil {
		t.Errorf("read outside exports dir with AllowUnsafe: %v", err)
	}
	if err := p.Check(filepath.Join(dir, "out.jsonl"), PathCheckWrite); err != nil {
		t.Errorf("write outside exports dir with AllowUnsafe: %v", err)
	}
}

func TestCheck_AllowedDirs(t *testing.T) {
	allowed := t.TempDir()
	p := PathPolicy{ExportsDir: t.TempDir(), AllowedDirs: []string{allowed}}

	in := filepath.Join(allowed, "in.jsonl")
	writeFile(t, in)
	if err := p.Check(in, PathCheckRead); err != nil {
		t.Errorf("expected allowed dir to pass, got %v", err)
	}

	other := filepath.Join(t.TempDir(), "other.jsonl")
	writeFile(t, other)
	if err := p.Check(other, PathCheckRead); err == nil {
		t.Error("expected error for path outside allowed dirs")
	}
}

func TestCheck_FileNotFound_ReadMode(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	err := p.Check(filepath.Join(p.ExportsDir, "missing.jsonl"), PathCheckRead)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected FILE_NOT_FOUND, got %v", err)
	}
}

func TestCheck_SymlinkRejected(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	target := filepath.Join(t.TempDir(), "secret.jsonl")
	writeFile(t, target)

	link := filepath.Join(p.ExportsDir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		if err := p.Check(link, mode); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected INVALID_REQUEST for symlink, got %v", mode, err)
		}
	}
}

func TestCheck_SymlinkRejected_EvenWhenUnsafe(t *testing.T) {
	dir := t.TempDir()
	p := PathPolicy{ExportsDir: t.TempDir(), AllowUnsafe: true}
	target := filepath.Join(dir, "target.jsonl")
	writeFile(t, target)

	link := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}
	if err := p.Check(link, PathCheckRead); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestCheck_NestedPathRejected(t *testing.T) {
	p := PathPolicy{ExportsDir: t.TempDir()}
	sub := filepath.Join(p.ExportsDir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	nested := filepath.Join(sub, "in.jsonl")
	writeFile(t, nested)

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		if err := p.Check(nested, mode); !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("mode %d: expected INVALID_REQUEST for nested path, got %v", mode, err)
		}
	}
}

func TestDefaultExportPath(t *testing.T) {
	p := PathPolicy{ExportsDir: "/data/exports"}
	got := p.DefaultExportPath("../なみ", "2026-05-10T120000")
	want := filepath.Join("/data/exports", "なみ-2026-05-10T120000.jsonl")
	if got != want {
		t.Errorf("DefaultExportPath = %q, want %q", got, want)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.jsonl", false},
		{"../file.jsonl", true},
		{"/home/../etc/passwd", true},
		{"./file.jsonl", false},
		{"/home/user/.hidden/file.jsonl", false},
		{"file..name.jsonl", false},
		{"/tmp/a/b/../c.jsonl", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := containsTraversal(tc.path); got != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
			}
		})
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"default nickname", "あなた", "あなた"},
		{"with spaces", "nami chan", "nami chan"},
		{"forward slash", "a/b", "a-b"},
		{"backslash", "a\\b", "a-b"},
		{"double dots", "foo..bar", "foo-bar"},
		{"traversal attempt", "../../../etc/passwd", "etc-passwd"},
		{"control chars", "foo\x00\x01bar", "foobar"},
		{"empty after sanitize", "../../..", "unnamed"},
		{"empty", "", "unnamed"},
		{"dashes collapse and trim", "---a---b---", "a-b"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeForFilename(tc.input); got != tc.expected {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
