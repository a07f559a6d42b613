package helpers

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zeebo/blake3"
)

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes", 1024, "1.00KB"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Megabytes fractional", 1024*1024 + 512*1024, "1.50MB"},
		{"Gigabytes", 1024 * 1024 * 1024, "1.00GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
		{"Large Terabytes", 1536 * 1024 * 1024 * 1024, "1.50TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestHashFile(t *testing.T) {
	content := []byte("this is test content for hashing")
	path := filepath.Join(t.TempDir(), "1.osz")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	sum := blake3.Sum256(content)
	want := hex.EncodeToString(sum[:])

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile(%q) returned error: %v", path, err)
	}
	if got != want {
		t.Errorf("HashFile(%q) = %q, want %q", path, got, want)
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing.osz")); !os.IsNotExist(err) {
		t.Errorf("HashFile on a missing file returned %v, want a not-exist error", err)
	}
}

func TestCheckHash(t *testing.T) {
	tempDir := t.TempDir()
	content := []byte("beatmap archive")
	path := filepath.Join(tempDir, "2.osz")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	sum := blake3.Sum256(content)
	expected := hex.EncodeToString(sum[:])

	tests := []struct {
		name     string
		path     string
		expected string
		want     bool
	}{
		{"Match", path, expected, true},
		{"Match uppercase", path, strings.ToUpper(expected), true},
		{"Mismatch", path, "deadbeef", false},
		{"No hash provided", path, "", false},
		{"No file exists", filepath.Join(tempDir, "nope.osz"), expected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckHash(tt.path, tt.expected); got != tt.want {
				t.Errorf("CheckHash(%q, %q) = %v, want %v", tt.path, tt.expected, got, tt.want)
			}
		})
	}
}

func TestParseSetIDs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantValid   []string
		wantInvalid []string
	}{
		{"Separate args", []string{"1", "22", "333"}, []string{"1", "22", "333"}, nil},
		{"Comma separated", []string{"1,2,,3"}, []string{"1", "2", "3"}, nil},
		{"Whitespace inside arg", []string{" 4 \t5\n"}, []string{"4", "5"}, nil},
		{"Invalid ids", []string{"12a", "-3", "7"}, []string{"7"}, []string{"12a", "-3"}},
		{"Nothing", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, invalid := ParseSetIDs(tt.args)
			if !reflect.DeepEqual(valid, tt.wantValid) {
				t.Errorf("ParseSetIDs(%q) valid = %q, want %q", tt.args, valid, tt.wantValid)
			}
			if !reflect.DeepEqual(invalid, tt.wantInvalid) {
				t.Errorf("ParseSetIDs(%q) invalid = %q, want %q", tt.args, invalid, tt.wantInvalid)
			}
		})
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	baseTempDir := t.TempDir()

	tests := []struct {
		name       string
		dirToMake  string // Relative to baseTempDir
		wantResult bool
		wantDir    bool
	}{
		{"Create simple directory", "new_dir", true, true},
		{"Create nested directory", filepath.Join("nested", "dir", "to", "create"), true, true},
		{"Path is an existing file", "existing_file.txt", false, false},
		{"Directory already exists", "already_exists", true, true},
	}

	if err := os.Mkdir(filepath.Join(baseTempDir, "already_exists"), 0755); err != nil {
		t.Fatalf("Failed to pre-create directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(baseTempDir, "existing_file.txt"), nil, 0644); err != nil {
		t.Fatalf("Failed to pre-create file: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full := filepath.Join(baseTempDir, tt.dirToMake)
			if got := CheckAndMakeDir(full); got != tt.wantResult {
				t.Errorf("CheckAndMakeDir(%q) = %v, want %v", full, got, tt.wantResult)
			}
			info, err := os.Stat(full)
			isDir := err == nil && info.IsDir()
			if isDir != tt.wantDir {
				t.Errorf("CheckAndMakeDir(%q): directory exists = %v, want %v", full, isDir, tt.wantDir)
			}
		})
	}
}
