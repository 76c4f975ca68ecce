package main

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/appforge-ai/appforge/internal/config"
)

// archiveRoots are the top-level directories a snapshot may contain. Each
// maps to a configured location on restore.
var archiveRoots = map[string]bool{
	"store":  true,
	"skills": true,
	"nats":   true,
}

// dataRoot is one backed-up location: a label inside the archive and its
// path on disk.
type dataRoot struct {
	label string
	path  string
}

func dataRoots(cfg *config.Config) []dataRoot {
	return []dataRoot{
		{"store", cfg.Store.Path},
		{"skills", cfg.Skills.DataDir},
		{"nats", cfg.NATS.DataDir},
	}
}

func runBackup(args []string) error {
	var outputPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "-f" {
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		}
	}
	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: appforged backup -f <output.tar.zst>\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	count := 0
	for _, root := range dataRoots(cfg) {
		n, err := archiveRoot(tw, root)
		if err != nil {
			return fmt.Errorf("backup %s: %w", root.label, err)
		}
		if n == 0 {
			slog.Warn("nothing to back up", "label", root.label, "path", root.path)
		}
		count += n
	}

	// Close explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	size := int64(0)
	if info, err := os.Stat(outputPath); err == nil {
		size = info.Size()
	}
	fmt.Printf("Backup complete: %d files, %s\n", count, formatSize(size))
	return nil
}

// archiveRoot writes one data root into the tar stream under its label.
// A root pointing at a single file (the sqlite database) produces one
// entry; a directory is walked recursively. Missing roots are skipped.
func archiveRoot(tw *tar.Writer, root dataRoot) (int, error) {
	info, err := os.Stat(root.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if !info.IsDir() {
		if err := writeFileEntry(tw, root.path, path.Join(root.label, filepath.Base(root.path)), info); err != nil {
			return 0, err
		}
		return 1, nil
	}

	count := 0
	err = filepath.WalkDir(root.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root.path, p)
		if err != nil {
			return err
		}
		name := path.Join(root.label, filepath.ToSlash(rel))

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			return tw.WriteHeader(&tar.Header{
				Name:     name + "/",
				Typeflag: tar.TypeDir,
				Mode:     0755,
			})
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if err := writeFileEntry(tw, p, name, fi); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func writeFileEntry(tw *tar.Writer, src, name string, info fs.FileInfo) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write data %s: %w", name, err)
	}
	return nil
}

func runRestore(args []string) error {
	var inputPath string
	overwrite := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-overwrite":
			overwrite = true
		}
	}
	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: appforged restore -f <backup.tar.zst> [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roots, err := scanArchiveRoots(inputPath)
	if err != nil {
		return fmt.Errorf("scan archive: %w", err)
	}
	if len(roots) == 0 {
		fmt.Println("Archive contains no data.")
		return nil
	}

	targets := make(map[string]string)
	for _, root := range dataRoots(cfg) {
		target := root.path
		if root.label == "store" {
			target = filepath.Dir(root.path)
		}
		targets[root.label] = target
	}

	if !overwrite {
		for _, label := range roots {
			if label == "store" {
				if _, err := os.Stat(cfg.Store.Path); err == nil {
					return fmt.Errorf("store %s already exists, add -overwrite to replace", cfg.Store.Path)
				}
				continue
			}
			if entries, err := os.ReadDir(targets[label]); err == nil && len(entries) > 0 {
				return fmt.Errorf("%s directory %s is not empty, add -overwrite to replace", label, targets[label])
			}
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	restored := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		label, rel := splitArchivePath(hdr.Name)
		if label == "" {
			continue
		}
		dest := filepath.Join(targets[label], filepath.FromSlash(rel))
		if !strings.HasPrefix(dest, filepath.Clean(targets[label])+string(os.PathSeparator)) && dest != filepath.Clean(targets[label]) {
			return fmt.Errorf("archive entry %q escapes target directory", hdr.Name)
		}

		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", dest, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", dest, err)
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode).Perm())
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("write %s: %w", dest, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("close %s: %w", dest, err)
		}
		restored++
	}

	fmt.Printf("Restore complete: %d files\n", restored)
	return nil
}

// scanArchiveRoots reads tar headers to collect the unique known roots
// present in the archive without extracting file data.
func scanArchiveRoots(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	seen := make(map[string]bool)
	var roots []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		label, _ := splitArchivePath(hdr.Name)
		if label != "" && !seen[label] {
			seen[label] = true
			roots = append(roots, label)
		}
	}
	return roots, nil
}

// splitArchivePath splits "skills/index.gob" into ("skills", "index.gob").
// Entries outside the known roots return an empty label.
func splitArchivePath(name string) (label, rel string) {
	name = strings.TrimLeft(name, "./")
	if name == "" {
		return "", ""
	}

	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		if archiveRoots[name] {
			return name, "."
		}
		return "", ""
	}

	label = name[:idx]
	rel = name[idx+1:]
	if rel == "" {
		rel = "."
	}
	if !archiveRoots[label] {
		return "", ""
	}
	return label, rel
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
