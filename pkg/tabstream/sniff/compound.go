package sniff

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

// Stream is one directory entry of a compound file.
type Stream struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Property is one entry of an OLE property set stream.
type Property struct {
	Set   string `json:"set"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Compound summarizes an OLE2 compound file.
type Compound struct {
	Streams    []Stream
	Properties []Property
	// Encrypted is set for password-protected packaged workbooks, which are
	// stored as an EncryptedPackage stream inside a compound file.
	Encrypted bool
	// Legacy is set for binary workbooks written before the packaged format.
	Legacy bool
}

// Reason describes why the file cannot be read as a workbook.
func (c *Compound) Reason() string {
	switch {
	case c.Encrypted:
		return "encrypted workbook"
	case c.Legacy:
		return "legacy binary workbook"
	}
	return "compound document"
}

// Err returns errs.ErrUnsupportedFormat annotated with Reason.
func (c *Compound) Err() error {
	return fmt.Errorf("%w: %s", errs.ErrUnsupportedFormat, c.Reason())
}

// ReadCompound walks the directory of the compound file held by ra and
// decodes any property set streams it contains.
func ReadCompound(ra io.ReaderAt) (*Compound, error) {
	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCorruptContainer, err)
	}

	c := &Compound{}
	for i, f := range doc.File {
		if i == 0 {
			// Root entry.
			continue
		}
		c.Streams = append(c.Streams, Stream{
			Name: f.Name,
			Path: strings.Join(append(append([]string(nil), f.Path...), f.Name), "/"),
			Size: f.Size,
		})
		switch f.Name {
		case "EncryptedPackage", "EncryptionInfo":
			c.Encrypted = true
		case "Workbook", "Book":
			c.Legacy = true
		}
		if msoleps.IsMSOLEPS(f.Initial) {
			props, err := msoleps.NewFrom(f)
			if err != nil {
				// Damaged property sets do not hide the rest of the directory.
				continue
			}
			for _, p := range props.Property {
				c.Properties = append(c.Properties, Property{Set: f.Name, Name: p.Name, Value: p.String()})
			}
		}
	}
	return c, nil
}

// InspectCompound reads the compound file at path.
func InspectCompound(path string) (*Compound, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrFileNotFound, path)
		}
		return nil, errs.NewIOError("open", path, err)
	}
	defer f.Close()
	return ReadCompound(f)
}
