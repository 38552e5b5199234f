// Package archive decodes tour packages. Extraction is all-or-nothing: a
// corrupt member fails the whole archive and no entries are returned.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrCorruptArchive reports data that is not a readable zip.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrTooLarge reports an archive whose uncompressed size exceeds the limit.
	ErrTooLarge = errors.New("archive exceeds extraction limit")
)

// Entry is one member of an archive. Directories carry no data.
type Entry struct {
	Path        string
	Data        []byte
	IsDirectory bool
}

// Size returns the length of the entry's data.
func (e Entry) Size() int64 {
	return int64(len(e.Data))
}

// Reader extracts zip archives held in memory.
type Reader struct {
	// MaxBytes caps the cumulative uncompressed size. Zero means unlimited.
	MaxBytes int64
}

// Extract reads every member of data. File entries are fully read so the
// nested resolver can inspect them. Members whose name is empty or escapes
// the archive root are dropped.
func (r Reader) Extract(data []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	entries := make([]Entry, 0, len(zr.File))
	var total int64
	for _, f := range zr.File {
		name, ok := cleanName(f.Name)
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			entries = append(entries, Entry{Path: name, IsDirectory: true})
			continue
		}

		body, err := r.readMember(f, total)
		if err != nil {
			return nil, err
		}
		total += int64(len(body))
		entries = append(entries, Entry{Path: name, Data: body})
	}
	return entries, nil
}

func (r Reader) readMember(f *zip.File, used int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCorruptArchive, f.Name, err)
	}
	defer rc.Close()

	var src io.Reader = rc
	if r.MaxBytes > 0 {
		// Read one byte past the budget so overflow is detectable without
		// trusting the header's declared size.
		src = io.LimitReader(rc, r.MaxBytes-used+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorruptArchive, f.Name, err)
	}
	if r.MaxBytes > 0 && used+int64(len(body)) > r.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, r.MaxBytes)
	}
	return body, nil
}

// cleanName normalises a member name to a slash-separated relative path.
func cleanName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	isDir := strings.HasSuffix(name, "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", false
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	if isDir {
		cleaned += "/"
	}
	return cleaned, true
}
