package manifest

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// FileName is the relative path of the manifest inside an extracted unit.
const FileName = "manifest.xml"

// Cause classifies why a manifest could not be produced.
type Cause string

const (
	CauseMissing   Cause = "missing"
	CauseMalformed Cause = "malformed"
)

// Error reports an absent or unreadable manifest.
type Error struct {
	Cause Cause
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Cause, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Member is one entry of the manifest listing, in document order.
type Member struct {
	Name string
	Size uint64
}

// Record is a parsed manifest. Title is nil when the document has no
// title element, which is distinct from an empty one.
type Record struct {
	Title   *string
	Members []Member
}

type xmlManifest struct {
	XMLName xml.Name  `xml:"manifest"`
	Title   *string   `xml:"title"`
	Items   []xmlItem `xml:"item"`
}

type xmlItem struct {
	Name string `xml:"name,attr"`
	Size string `xml:"size,attr"`
}

// Parse decodes a manifest document, preserving member order.
func Parse(r io.Reader) (Record, error) {
	var doc xmlManifest
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Record{}, &Error{Cause: CauseMalformed, Err: err}
	}

	rec := Record{Title: doc.Title}
	for i, item := range doc.Items {
		if item.Name == "" {
			return Record{}, &Error{Cause: CauseMalformed, Err: fmt.Errorf("item %d has no name attribute", i)}
		}
		if item.Size == "" {
			return Record{}, &Error{Cause: CauseMalformed, Err: fmt.Errorf("item %q has no size attribute", item.Name)}
		}
		size, err := strconv.ParseUint(item.Size, 10, 64)
		if err != nil {
			return Record{}, &Error{Cause: CauseMalformed, Err: fmt.Errorf("item %q size %q is not a non-negative integer", item.Name, item.Size)}
		}
		rec.Members = append(rec.Members, Member{Name: item.Name, Size: size})
	}
	return rec, nil
}

// Read locates the manifest at its fixed relative path under dir and
// parses it.
func Read(dir string) (Record, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, &Error{Cause: CauseMissing, Err: err}
		}
		return Record{}, fmt.Errorf("open manifest in %s: %w", dir, err)
	}
	defer f.Close()
	return Parse(f)
}
