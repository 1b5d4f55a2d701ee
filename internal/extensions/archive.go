package extensions

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Archive errors.
var (
	ErrInvalidArchive  = errors.New("extensions: invalid zip archive")
	ErrArchiveTooLarge = errors.New("extensions: archive exceeds size limit")
	ErrUnsafePath      = errors.New("extensions: archive entry escapes target directory")
)

const defaultMaxExtractedBytes int64 = 200 << 20

// ExtractOptions bounds archive extraction.
type ExtractOptions struct {
	// MaxBytes caps the total uncompressed size. Zero uses the default.
	MaxBytes int64
	// MaxFiles caps the number of entries. Zero means unlimited.
	MaxFiles int
}

// ExtractZip unpacks src into dest. Entries that would land outside dest are
// rejected, symlinks are skipped and, when every entry lives below one
// top-level directory, that directory is stripped so the manifest ends up at
// the root of dest.
func ExtractZip(src, dest string, opts ExtractOptions) error {
	reader, err := zip.OpenReader(src)
	if reader != nil {
		defer reader.Close()
	}
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxExtractedBytes
	}

	files := make([]*zip.File, 0, len(reader.File))
	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		name := normaliseEntryName(file.Name)
		if name == "" || ignoredEntry(name) {
			continue
		}
		files = append(files, file)
		names = append(names, name)
	}
	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		return fmt.Errorf("%w: %d entries", ErrArchiveTooLarge, len(files))
	}

	strip := commonTopLevelDir(names)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	var written int64
	for i, file := range files {
		rel := strings.TrimPrefix(names[i], strip)
		if rel == "" {
			continue
		}

		target, err := safeJoin(absDest, rel)
		if err != nil {
			return err
		}

		mode := file.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			continue
		case file.FileInfo().IsDir() || strings.HasSuffix(file.Name, "/"):
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		n, err := extractFile(file, target, maxBytes-written)
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}

func extractFile(file *zip.File, target string, budget int64) (int64, error) {
	if budget <= 0 || int64(file.UncompressedSize64) > budget {
		return 0, ErrArchiveTooLarge
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	rc, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	// declared sizes can lie, so the copy itself is bounded too
	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if n > budget {
		return n, ErrArchiveTooLarge
	}
	return n, nil
}

func safeJoin(root, rel string) (string, error) {
	if path.IsAbs(rel) || strings.Contains(rel, `\`) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, rel)
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	inside, err := filepath.Rel(root, target)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, rel)
	}
	return target, nil
}

func normaliseEntryName(name string) string {
	name = strings.TrimPrefix(name, "./")
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func ignoredEntry(name string) bool {
	base := path.Base(strings.TrimSuffix(name, "/"))
	return strings.HasPrefix(name, "__MACOSX/") || base == ".DS_Store"
}

// commonTopLevelDir returns "dir/" when every entry sits below the same
// top-level directory, otherwise "".
func commonTopLevelDir(names []string) string {
	var top string
	for _, name := range names {
		idx := strings.IndexByte(name, '/')
		if idx <= 0 {
			return ""
		}
		segment := name[:idx+1]
		if top == "" {
			top = segment
		} else if segment != top {
			return ""
		}
	}
	if top == "../" || top == "./" {
		return ""
	}
	return top
}
