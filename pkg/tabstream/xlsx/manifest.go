package xlsx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/archive"
	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

const (
	defaultWorkbookPath = "xl/workbook.xml"

	relTypeOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relSuffixWorksheet    = "/worksheet"
	relSuffixSharedString = "/sharedStrings"

	// maxManifestPart bounds the size of the small XML parts read whole.
	maxManifestPart = 16 << 20
)

// sheetRef is one sheet listed by the workbook manifest.
type sheetRef struct {
	Name string
	RID  string
	Path string
}

// manifest is what the reader needs from the package structure.
type manifest struct {
	Workbook      string
	Sheets        []sheetRef
	SharedStrings string
}

// readManifest resolves the workbook part, its sheets in document order and
// the shared strings part.
func readManifest(ar *archive.Reader) (*manifest, error) {
	m := &manifest{Workbook: defaultWorkbookPath}

	if rootRels, err := readZipFile(ar, "_rels/.rels"); err == nil {
		for _, rel := range parseRelationships(rootRels) {
			if rel.Type == relTypeOfficeDocument {
				m.Workbook = resolveRelativePath(rel.Target, "")
				break
			}
		}
	} else if !errors.Is(err, errs.ErrEntryNotFound) {
		return nil, err
	}

	workbookXML, err := readZipFile(ar, m.Workbook)
	if err != nil {
		if errors.Is(err, errs.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %w", errs.ErrCorruptContainer, err)
		}
		return nil, err
	}
	m.Sheets = parseWorkbookSheets(workbookXML)

	baseDir := path.Dir(m.Workbook)
	relsPath := path.Join(baseDir, "_rels", path.Base(m.Workbook)+".rels")
	wbRelsXML, err := readZipFile(ar, relsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrCorruptContainer, err)
	}

	targets := make(map[string]string)
	for _, rel := range parseRelationships(wbRelsXML) {
		switch {
		case strings.HasSuffix(rel.Type, relSuffixWorksheet):
			targets[rel.ID] = resolveRelativePath(rel.Target, baseDir)
		case strings.HasSuffix(rel.Type, relSuffixSharedString):
			m.SharedStrings = resolveRelativePath(rel.Target, baseDir)
		}
	}

	sheets := m.Sheets[:0]
	for _, s := range m.Sheets {
		target, ok := targets[s.RID]
		if !ok || !ar.Has(target) {
			return nil, fmt.Errorf("%w: sheet %q has no worksheet entry", errs.ErrCorruptContainer, s.Name)
		}
		s.Path = target
		sheets = append(sheets, s)
	}
	m.Sheets = sheets
	return m, nil
}

func readZipFile(ar *archive.Reader, name string) ([]byte, error) {
	er, err := ar.OpenEntry(name)
	if err != nil {
		return nil, err
	}
	defer er.Close()
	data, err := io.ReadAll(io.LimitReader(er, maxManifestPart+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxManifestPart {
		return nil, fmt.Errorf("%w: part %s is too large", errs.ErrCorruptContainer, name)
	}
	return data, nil
}

// resolveRelativePath resolves a relationship target against the
// directory of its source part.
func resolveRelativePath(target, baseDir string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(baseDir, target))
}

// parseWorkbookSheets lists the sheets of workbook.xml in document order.
func parseWorkbookSheets(data []byte) []sheetRef {
	var result []sheetRef
	decoder := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		if se, ok := token.(xml.StartElement); ok && se.Name.Local == "sheet" {
			var ref sheetRef
			for _, attr := range se.Attr {
				switch {
				case attr.Name.Local == "name":
					ref.Name = attr.Value
				case attr.Name.Local == "id" && attr.Name.Space != "":
					ref.RID = attr.Value
				}
			}
			if ref.Name != "" && ref.RID != "" {
				result = append(result, ref)
			}
		}
	}

	return result
}

type relationship struct {
	ID     string
	Type   string
	Target string
}

// parseRelationships reads a .rels part.
func parseRelationships(data []byte) []relationship {
	var result []relationship
	decoder := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		if se, ok := token.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			var rel relationship
			for _, attr := range se.Attr {
				switch attr.Name.Local {
				case "Id":
					rel.ID = attr.Value
				case "Type":
					rel.Type = attr.Value
				case "Target":
					rel.Target = attr.Value
				}
			}
			result = append(result, rel)
		}
	}

	return result
}
