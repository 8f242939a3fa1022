// Package archive flattens compressed containers into scannable entries.
// An attachment is a tagged tree: either leaf bytes or a list of nested
// entries, so expansion is one recursive walk over that shape.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/sejmwatch/sejmaudit/internal/treeid"
)

// Entry is one scannable unit produced by expansion.
type Entry struct {
	Name    string
	Data    []byte
	ID      string
	Display string
	// Corrupt marks an archive that could not be opened and is therefore
	// passed through opaque.
	Corrupt bool
}

// Ext returns the lowercase extension of a filename without the dot.
func Ext(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

// IsArchive reports whether the extension names a supported container.
func IsArchive(ext string) bool {
	return ext == "zip"
}

// Expand recursively unfolds archives into their leaf entries. Non-archive
// input comes back unchanged as a single entry. A corrupt archive is emitted
// as one opaque entry rather than aborting the attachment. Entry order
// follows the archive's internal order at every level.
func Expand(data []byte, name, id, display string) []Entry {
	if !IsArchive(Ext(name)) {
		return []Entry{{Name: name, Data: data, ID: id, Display: display}}
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return []Entry{{Name: name, Data: data, ID: id, Display: display, Corrupt: true}}
	}

	var entries []Entry
	index := 0
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		index++
		childID := treeid.Child(id, fmt.Sprintf("%d", index))
		childDisplay := treeid.NestedDisplay(display, path.Base(f.Name))

		inner, err := readEntry(f)
		if err != nil {
			entries = append(entries, Entry{
				Name:    path.Base(f.Name),
				ID:      childID,
				Display: childDisplay,
				Corrupt: true,
			})
			continue
		}
		entries = append(entries, Expand(inner, path.Base(f.Name), childID, childDisplay)...)
	}

	if entries == nil {
		// Empty archive: keep the container itself visible in the tree.
		return []Entry{{Name: name, Data: nil, ID: id, Display: display}}
	}
	return entries
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer func() {
		_ = rc.Close()
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read zip entry %s: %w", f.Name, err)
	}
	return data, nil
}
