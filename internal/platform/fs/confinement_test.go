// SPDX-License-Identifier: MIT

package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfineRelPath(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "subdir")
	if err := os.Mkdir(subDir, 0o750); err != nil {
		t.Fatal(err)
	}

	safeFile := filepath.Join(tmpDir, "safe.txt")
	if err := os.WriteFile(safeFile, []byte("safe"), 0o600); err != nil {
		t.Fatal(err)
	}

	nested := filepath.Join(subDir, "nested.json")
	if err := os.WriteFile(nested, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	// Symlink pointing above the root
	linkOutside := filepath.Join(tmpDir, "link_outside")
	if err := os.Symlink("..", linkOutside); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		root     string
		target   string
		wantErr  bool
		wantPath string // if not empty, checks suffix
	}{
		{
			name:     "valid simple file",
			root:     tmpDir,
			target:   "safe.txt",
			wantErr:  false,
			wantPath: "safe.txt",
		},
		{
			name:     "valid subdir file",
			root:     tmpDir,
			target:   "subdir/nested.json",
			wantErr:  false,
			wantPath: "nested.json",
		},
		{
			name:    "absolute target rejected",
			root:    tmpDir,
			target:  "/etc/passwd",
			wantErr: true,
		},
		{
			name:    "parent traversal rejected",
			root:    tmpDir,
			target:  "../escape.txt",
			wantErr: true,
		},
		{
			name:    "clean traversal rejected",
			root:    tmpDir,
			target:  "subdir/../../escape.txt",
			wantErr: true,
		},
		{
			name:    "backslash rejected",
			root:    tmpDir,
			target:  "subdir\\..\\escape",
			wantErr: true,
		},
		{
			name:    "symlink escape rejected",
			root:    tmpDir,
			target:  "link_outside/passwd",
			wantErr: true,
		},
		{
			name:     "nonexistent file under root allowed",
			root:     tmpDir,
			target:   "subdir/new-export.json",
			wantErr:  false,
			wantPath: "new-export.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(tt.root, tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfineRelPath(%q, %q) error = %v, wantErr %v", tt.root, tt.target, err, tt.wantErr)
			}
			if !tt.wantErr && tt.wantPath != "" && !strings.HasSuffix(got, tt.wantPath) {
				t.Errorf("ConfineRelPath() = %q, want suffix %q", got, tt.wantPath)
			}
		})
	}
}

func TestConfineAbsPath(t *testing.T) {
	tmpDir := t.TempDir()

	inside := filepath.Join(tmpDir, "resume.pdf")
	if err := os.WriteFile(inside, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ConfineAbsPath(tmpDir, inside); err != nil {
		t.Errorf("path inside root rejected: %v", err)
	}
	if _, err := ConfineAbsPath(tmpDir, "/etc/passwd"); err == nil {
		t.Error("path outside root accepted")
	}
	if _, err := ConfineAbsPath(tmpDir, "relative/path"); err == nil {
		t.Error("relative target accepted")
	}
}

func TestIsRegularFile(t *testing.T) {
	tmpDir := t.TempDir()

	file := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := IsRegularFile(file); err != nil {
		t.Errorf("regular file rejected: %v", err)
	}
	if err := IsRegularFile(tmpDir); err == nil {
		t.Error("directory accepted as regular file")
	}
	if err := IsRegularFile(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("missing file accepted")
	}
}
