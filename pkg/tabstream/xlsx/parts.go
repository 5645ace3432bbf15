package xlsx

import (
	"bytes"
	"strconv"
	"time"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/models"
)

// XML namespaces and content types of the package parts.
const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	nsMain          = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsR             = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsPackageRels   = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsContentTypes  = "http://schemas.openxmlformats.org/package/2006/content-types"
	relTypeBase     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
	relTypeCoreProp = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"

	ctWorkbook  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"
	ctWorksheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"
	ctStyles    = "application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"
	ctShared    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"
	ctCore      = "application/vnd.openxmlformats-package.core-properties+xml"
	ctApp       = "application/vnd.openxmlformats-officedocument.extended-properties+xml"
	ctRels      = "application/vnd.openxmlformats-package.relationships+xml"
)

// Part names written by the writer.
const (
	partContentTypes  = "[Content_Types].xml"
	partRootRels      = "_rels/.rels"
	partApp           = "docProps/app.xml"
	partCore          = "docProps/core.xml"
	partWorkbook      = "xl/workbook.xml"
	partWorkbookRels  = "xl/_rels/workbook.xml.rels"
	partStyles        = "xl/styles.xml"
	partSharedStrings = "xl/sharedStrings.xml"
)

const (
	worksheetStart = xmlHeader + `<worksheet xmlns="` + nsMain + `" xmlns:r="` + nsR + `"><sheetData>`
	worksheetEnd   = `</sheetData></worksheet>`
)

func worksheetPart(n int) string {
	return "xl/worksheets/sheet" + strconv.Itoa(n) + ".xml"
}

func contentTypesXML(sheets []models.SheetInfo, shared bool) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="` + nsContentTypes + `">`)
	b.WriteString(`<Default Extension="rels" ContentType="` + ctRels + `"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Override PartName="/` + partWorkbook + `" ContentType="` + ctWorkbook + `"/>`)
	for _, s := range sheets {
		b.WriteString(`<Override PartName="/` + s.Entry + `" ContentType="` + ctWorksheet + `"/>`)
	}
	b.WriteString(`<Override PartName="/` + partStyles + `" ContentType="` + ctStyles + `"/>`)
	if shared {
		b.WriteString(`<Override PartName="/` + partSharedStrings + `" ContentType="` + ctShared + `"/>`)
	}
	b.WriteString(`<Override PartName="/` + partCore + `" ContentType="` + ctCore + `"/>`)
	b.WriteString(`<Override PartName="/` + partApp + `" ContentType="` + ctApp + `"/>`)
	b.WriteString(`</Types>`)
	return b.Bytes()
}

func rootRelsXML() []byte {
	return []byte(xmlHeader +
		`<Relationships xmlns="` + nsPackageRels + `">` +
		`<Relationship Id="rId1" Type="` + relTypeOfficeDocument + `" Target="` + partWorkbook + `"/>` +
		`<Relationship Id="rId2" Type="` + relTypeCoreProp + `" Target="` + partCore + `"/>` +
		`<Relationship Id="rId3" Type="` + relTypeBase + `extended-properties" Target="` + partApp + `"/>` +
		`</Relationships>`)
}

func workbookXML(sheets []models.SheetInfo) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<workbook xmlns="` + nsMain + `" xmlns:r="` + nsR + `">`)
	b.WriteString(`<bookViews><workbookView/></bookViews><sheets>`)
	for i, s := range sheets {
		n := strconv.Itoa(i + 1)
		b.WriteString(`<sheet name="`)
		escapeAttr(&b, s.Name)
		b.WriteString(`" sheetId="` + n + `" r:id="rId` + n + `"/>`)
	}
	b.WriteString(`</sheets></workbook>`)
	return b.Bytes()
}

func workbookRelsXML(sheets []models.SheetInfo, shared bool) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="` + nsPackageRels + `">`)
	for i, s := range sheets {
		b.WriteString(`<Relationship Id="rId` + strconv.Itoa(i+1) + `" Type="` + relTypeBase + `worksheet" Target="`)
		b.WriteString(s.Entry[len("xl/"):])
		b.WriteString(`"/>`)
	}
	next := len(sheets) + 1
	b.WriteString(`<Relationship Id="rId` + strconv.Itoa(next) + `" Type="` + relTypeBase + `styles" Target="styles.xml"/>`)
	if shared {
		b.WriteString(`<Relationship Id="rId` + strconv.Itoa(next+1) + `" Type="` + relTypeBase + `sharedStrings" Target="sharedStrings.xml"/>`)
	}
	b.WriteString(`</Relationships>`)
	return b.Bytes()
}

// stylesXML is the smallest style sheet spreadsheet applications accept.
func stylesXML() []byte {
	return []byte(xmlHeader +
		`<styleSheet xmlns="` + nsMain + `">` +
		`<fonts count="1"><font><sz val="11"/><name val="Calibri"/><family val="2"/></font></fonts>` +
		`<fills count="2"><fill><patternFill patternType="none"/></fill><fill><patternFill patternType="gray125"/></fill></fills>` +
		`<borders count="1"><border><left/><right/><top/><bottom/><diagonal/></border></borders>` +
		`<cellStyleXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0"/></cellStyleXfs>` +
		`<cellXfs count="1"><xf numFmtId="0" fontId="0" fillId="0" borderId="0" xfId="0"/></cellXfs>` +
		`<cellStyles count="1"><cellStyle name="Normal" xfId="0" builtinId="0"/></cellStyles>` +
		`</styleSheet>`)
}

func appXML(application string) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">`)
	b.WriteString(`<Application>`)
	escapeAttr(&b, application)
	b.WriteString(`</Application></Properties>`)
	return b.Bytes()
}

func coreXML(creator string, created time.Time) []byte {
	ts := created.UTC().Format(time.RFC3339)
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/"` +
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	b.WriteString(`<dc:creator>`)
	escapeAttr(&b, creator)
	b.WriteString(`</dc:creator>`)
	b.WriteString(`<dcterms:created xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:created>`)
	b.WriteString(`<dcterms:modified xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:modified>`)
	b.WriteString(`</cp:coreProperties>`)
	return b.Bytes()
}

const sharedStringsStart = xmlHeader + `<sst xmlns="` + nsMain + `" count="`
