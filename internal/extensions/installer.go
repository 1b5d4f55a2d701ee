package extensions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// Installer errors.
var (
	ErrAlreadyInstalled = errors.New("extensions: extension already installed")
	ErrKindMismatch     = errors.New("extensions: archive does not contain the expected manifest")
)

const defaultMaxUploadBytes int64 = 50 << 20

// InstallResult describes a completed install.
type InstallResult struct {
	Manifest *Manifest
	Path     string
	Replaced bool
}

// Installer extracts extension archives into the registry roots.
type Installer struct {
	registry *Registry
	tempDir  string
	maxBytes int64
}

// NewInstaller builds an installer. tempDir holds uploads while they are
// validated; maxBytes caps the archive size (zero uses 50 MiB).
func NewInstaller(registry *Registry, tempDir string, maxBytes int64) (*Installer, error) {
	if registry == nil {
		return nil, errors.New("extensions: installer requires a registry")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Installer{registry: registry, tempDir: tempDir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the upload limit.
func (i *Installer) MaxBytes() int64 {
	return i.maxBytes
}

// Install reads a zip archive from r, validates its manifest and moves it into
// place. An existing extension with the same id is only overwritten when
// replace is set; the previous directory is restored if the swap fails.
// Temporary files are removed on every path.
func (i *Installer) Install(r io.Reader, size int64, kind Kind, replace bool) (*InstallResult, error) {
	if size > i.maxBytes {
		return nil, ErrArchiveTooLarge
	}
	if err := os.MkdirAll(i.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("extensions: temp dir: %w", err)
	}

	work, err := os.MkdirTemp(i.tempDir, "install-*")
	if err != nil {
		return nil, fmt.Errorf("extensions: temp dir: %w", err)
	}
	defer os.RemoveAll(work)

	archive := filepath.Join(work, "upload.zip")
	if err := i.spool(r, archive); err != nil {
		return nil, err
	}

	mtype, err := mimetype.DetectFile(archive)
	if err != nil {
		return nil, fmt.Errorf("extensions: detect archive type: %w", err)
	}
	if !isZip(mtype) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidArchive, mtype.String())
	}

	staged := filepath.Join(work, "staged")
	if err := ExtractZip(archive, staged, ExtractOptions{MaxBytes: i.maxBytes * 4}); err != nil {
		return nil, err
	}

	manifest, err := readStagedManifest(staged, kind)
	if err != nil {
		return nil, err
	}

	target, err := i.registry.Dir(kind, manifest.ID)
	if err != nil {
		return nil, err
	}

	replaced, err := moveIntoPlace(staged, target, filepath.Join(work, "previous"), replace)
	if err != nil {
		return nil, err
	}
	i.registry.Invalidate(kind)

	manifest.Path = target
	return &InstallResult{Manifest: manifest, Path: target, Replaced: replaced}, nil
}

// Remove deletes an installed extension directory.
func (i *Installer) Remove(kind Kind, id string) error {
	dir, err := i.registry.Dir(kind, id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s %s", ErrExtensionNotFound, kind, id)
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("extensions: remove %s: %w", dir, err)
	}
	i.registry.Invalidate(kind)
	return nil
}

func (i *Installer) spool(r io.Reader, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("extensions: spool upload: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return fmt.Errorf("extensions: spool upload: %w", err)
	}
	if n > i.maxBytes {
		return ErrArchiveTooLarge
	}
	if n == 0 {
		return fmt.Errorf("%w: empty upload", ErrInvalidArchive)
	}
	return nil
}

func readStagedManifest(dir string, kind Kind) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, kind.ManifestFile()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			other := KindTheme
			if kind == KindTheme {
				other = KindPlugin
			}
			if _, statErr := os.Stat(filepath.Join(dir, other.ManifestFile())); statErr == nil {
				return nil, fmt.Errorf("%w: found %s", ErrKindMismatch, other.ManifestFile())
			}
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, kind.ManifestFile())
		}
		return nil, err
	}

	if ProbeManifestID(data, kind) == "" {
		return nil, ErrMissingID
	}
	return ParseManifest(data, kind)
}

func moveIntoPlace(staged, target, backup string, replace bool) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, err
	}

	_, statErr := os.Stat(target)
	exists := statErr == nil
	if exists && !replace {
		return false, fmt.Errorf("%w: %s", ErrAlreadyInstalled, filepath.Base(target))
	}

	if exists {
		if err := os.Rename(target, backup); err != nil {
			return false, fmt.Errorf("extensions: move previous version aside: %w", err)
		}
	}

	if err := os.Rename(staged, target); err != nil {
		if copyErr := copyDir(staged, target); copyErr != nil {
			_ = os.RemoveAll(target)
			if exists {
				_ = os.Rename(backup, target)
			}
			return false, fmt.Errorf("extensions: move into place: %w", copyErr)
		}
	}
	return exists, nil
}

// copyDir is used when staged and target sit on different filesystems.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

// isZip accepts zip and zip-based formats such as jar.
func isZip(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}
