package main

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/appforge-ai/appforge/internal/config"
)

func TestSplitArchivePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLabel string
		wantRel   string
	}{
		{"store file", "store/appforge.db", "store", "appforge.db"},
		{"nested path", "skills/index.gob", "skills", "index.gob"},
		{"nats stream", "nats/jetstream/stream.dat", "nats", "jetstream/stream.dat"},
		{"directory with slash", "nats/jetstream/", "nats", "jetstream/"},
		{"root dir", "skills/", "skills", "."},
		{"bare root name", "skills", "skills", "."},
		{"leading dot-slash", "./store/appforge.db", "store", "appforge.db"},
		{"leading slash", "/store/appforge.db", "store", "appforge.db"},
		{"unknown root", "other/file.txt", "", ""},
		{"empty string", "", "", ""},
		{"just a slash", "/", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLabel, gotRel := splitArchivePath(tt.input)
			if gotLabel != tt.wantLabel {
				t.Errorf("splitArchivePath(%q) label = %q, want %q", tt.input, gotLabel, tt.wantLabel)
			}
			if gotRel != tt.wantRel {
				t.Errorf("splitArchivePath(%q) rel = %q, want %q", tt.input, gotRel, tt.wantRel)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 bytes"},
		{512, "512 bytes"},
		{1023, "1023 bytes"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatSize(tt.bytes); got != tt.want {
				t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestScanArchiveRoots(t *testing.T) {
	path := createTestArchive(t, map[string]string{
		"store/appforge.db":    "sqlite",
		"skills/index.gob":     "gob",
		"skills/sub/extra.gob": "gob2",
		"other/ignored.txt":    "noise",
	})

	roots, err := scanArchiveRoots(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d: %v", len(roots), roots)
	}

	found := make(map[string]bool)
	for _, r := range roots {
		found[r] = true
	}
	if !found["store"] || !found["skills"] {
		t.Errorf("missing expected roots in %v", roots)
	}
}

func TestScanArchiveRootsInvalidZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.zst")
	os.WriteFile(path, []byte("not zstd data"), 0644)

	if _, err := scanArchiveRoots(path); err == nil {
		t.Fatal("expected error for invalid zstd data")
	}
}

// TestArchiveRoundTrip walks real files into an archive and verifies each
// entry splits back into a known root plus relative path.
func TestArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "appforge.db")
	skillsDir := filepath.Join(dir, "skills")
	if err := os.WriteFile(storePath, []byte("sqlite-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(skillsDir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillsDir, "index.gob"), []byte("vectors"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillsDir, "sub", "extra.gob"), []byte("more"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Store.Path = storePath
	cfg.Skills.DataDir = skillsDir
	cfg.NATS.DataDir = filepath.Join(dir, "missing-nats")

	archive := filepath.Join(dir, "backup.tar.zst")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	zw, _ := zstd.NewWriter(f)
	tw := tar.NewWriter(zw)

	total := 0
	for _, root := range dataRoots(cfg) {
		n, err := archiveRoot(tw, root)
		if err != nil {
			t.Fatalf("archive %s: %v", root.label, err)
		}
		total += n
	}
	tw.Close()
	zw.Close()
	f.Close()

	if total != 3 {
		t.Fatalf("archived %d files, want 3", total)
	}

	roots, err := scanArchiveRoots(archive)
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %v", roots)
	}

	// Every entry must land under a known root with readable content.
	rf, _ := os.Open(archive)
	defer rf.Close()
	zr, _ := zstd.NewReader(rf)
	defer zr.Close()
	tr := tar.NewReader(zr)

	files := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		label, rel := splitArchivePath(hdr.Name)
		if label == "" {
			t.Fatalf("entry %q outside known roots", hdr.Name)
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		files[label+"/"+rel] = string(data)
	}

	if files["store/appforge.db"] != "sqlite-bytes" {
		t.Errorf("store content = %q", files["store/appforge.db"])
	}
	if files["skills/index.gob"] != "vectors" {
		t.Errorf("skills content = %q", files["skills/index.gob"])
	}
	if files["skills/sub/extra.gob"] != "more" {
		t.Errorf("nested skills content = %q", files["skills/sub/extra.gob"])
	}
}

// createTestArchive builds a zstd-compressed tar with the given entries.
func createTestArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tar.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(zw)
	for name, content := range entries {
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	zw.Close()
	return path
}
