// Package archive unwraps genotype files uploaded as single-entry zip archives.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/krolaw/zipstream"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/inodb/plinkeig/internal/fileio"
)

// ErrMultipleEntries is matched by a FormatError caused by a second entry.
var ErrMultipleEntries = errors.New("only a single file may be zipped in the genotype file archive")

// FormatError reports an archive that does not hold exactly one file.
type FormatError struct {
	Archive string
	Entries []string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %v (found %s)", e.Archive, ErrMultipleEntries, strings.Join(e.Entries, ", "))
}

// Is matches ErrMultipleEntries.
func (e *FormatError) Is(target error) bool {
	return target == ErrMultipleEntries
}

// Unzipper extracts single-entry archives onto a filesystem.
type Unzipper struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewUnzipper creates an Unzipper working on fs.
func NewUnzipper(fs afero.Fs) *Unzipper {
	return &Unzipper{fs: fs, logger: zap.NewNop()}
}

// SetLogger sets the logger for extraction messages.
func (u *Unzipper) SetLogger(l *zap.Logger) {
	u.logger = l
}

// UnzipIfNeeded returns path unchanged unless it is a zip archive. An
// archive must contain exactly one file, which is extracted into destDir
// under its own base name; the extracted path is returned. Directory
// entries are ignored. On a second file the extracted copy is removed and a
// *FormatError is returned.
func (u *Unzipper) UnzipIfNeeded(path, destDir string) (string, error) {
	f, err := u.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read archive header: %w", err)
	}
	if fileio.Detect(head) != fileio.DataTypeZip {
		return path, nil
	}

	zr := zipstream.NewReader(br)
	var extracted string
	var entries []string
	for {
		hdr, err := zr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			u.remove(extracted)
			return "", fmt.Errorf("read archive %s: %w", path, err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		entries = append(entries, hdr.Name)
		if extracted != "" {
			u.remove(extracted)
			return "", &FormatError{Archive: filepath.Base(path), Entries: entries}
		}

		extracted = filepath.Join(destDir, filepath.Base(hdr.Name))
		u.logger.Debug("unzipping archive entry",
			zap.String("archive", path),
			zap.String("entry", hdr.Name),
			zap.String("dest", extracted))
		if err := u.extract(zr, extracted); err != nil {
			u.remove(extracted)
			return "", err
		}
	}

	if extracted == "" {
		return "", fmt.Errorf("archive %s contains no file", path)
	}
	return extracted, nil
}

func (u *Unzipper) extract(r io.Reader, dest string) error {
	if err := u.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	out, err := u.fs.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", dest, err)
	}
	return out.Close()
}

func (u *Unzipper) remove(path string) {
	if path == "" {
		return
	}
	if err := u.fs.Remove(path); err != nil {
		u.logger.Warn("could not remove partially extracted file",
			zap.String("path", path), zap.Error(err))
	}
}
