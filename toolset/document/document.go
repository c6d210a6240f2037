// Package document extracts text and tabular data from PDF, Word, Excel,
// CSV, JSON and plain-text files inside the workspace.
package document

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

const (
	// DefaultMaxPages bounds parse_pdf when maxPages is not given.
	DefaultMaxPages = 50
	// DefaultMaxFileBytes bounds the size of any parsed file.
	DefaultMaxFileBytes = 50 << 20
)

var (
	// ErrUnsupportedType is returned by parse_document for unknown extensions.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrSheetNotFound is returned when the requested worksheet does not exist.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrFileTooLarge is returned for files above Options.MaxFileBytes.
	ErrFileTooLarge = errors.New("file too large")
)

// Options configures the document tools.
type Options struct {
	MaxFileBytes int64
}

type parser struct {
	policy *guard.PathPolicy
	opts   Options
}

// Tools returns the document parsing tools. Every path is resolved through
// policy.CheckRead.
func Tools(policy *guard.PathPolicy, optFns ...func(o *Options)) []tool.Tool {
	opts := Options{MaxFileBytes: DefaultMaxFileBytes}
	for _, fn := range optFns {
		fn(&opts)
	}

	p := &parser{policy: policy, opts: opts}

	filePath := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	asJSON := map[string]any{"type": "boolean", "description": "Return as JSON objects instead of text (default: false)"}

	return []tool.Tool{
		tool.NewFunctionTool("parse_pdf",
			"Extract text and metadata from PDF files.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filePath": filePath("Path to PDF file"),
					"maxPages": map[string]any{"type": "integer", "description": "Maximum pages to parse (default: 50)"},
				},
				"required": []string{"filePath"},
			},
			p.handle(func(abs string, args map[string]any) (any, error) {
				return p.parsePDF(abs, tool.IntArg(args, "maxPages", DefaultMaxPages))
			}),
		),
		tool.NewFunctionTool("parse_docx",
			"Extract text and HTML from Word documents (.docx).",
			map[string]any{
				"type":       "object",
				"properties": map[string]any{"filePath": filePath("Path to DOCX file")},
				"required":   []string{"filePath"},
			},
			p.handle(func(abs string, _ map[string]any) (any, error) {
				return p.parseDocx(abs)
			}),
		),
		tool.NewFunctionTool("parse_excel",
			"Extract data from Excel files (.xlsx).",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filePath":  filePath("Path to Excel file"),
					"sheetName": map[string]any{"type": "string", "description": "Specific sheet to parse (default: first sheet)"},
					"asJson":    asJSON,
				},
				"required": []string{"filePath"},
			},
			p.handle(func(abs string, args map[string]any) (any, error) {
				return p.parseExcel(abs, tool.StringArg(args, "sheetName"), tool.BoolArg(args, "asJson", false))
			}),
		),
		tool.NewFunctionTool("parse_csv",
			"Parse CSV files.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filePath":  filePath("Path to CSV file"),
					"delimiter": map[string]any{"type": "string", "description": "Column delimiter (default: comma)"},
					"asJson":    asJSON,
				},
				"required": []string{"filePath"},
			},
			p.handle(func(abs string, args map[string]any) (any, error) {
				return p.parseCSV(abs, tool.StringArg(args, "delimiter"), tool.BoolArg(args, "asJson", false))
			}),
		),
		tool.NewFunctionTool("parse_document",
			"Auto-detect file type and parse any supported document (PDF, DOCX, XLSX, CSV, JSON, TXT, MD).",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filePath": filePath("Path to document file"),
					"options": map[string]any{
						"type":        "object",
						"description": "Parser-specific options (maxPages for PDF, sheetName for Excel, delimiter for CSV, asJson)",
					},
				},
				"required": []string{"filePath"},
			},
			p.handle(p.parseAny),
		),
	}
}

// handle resolves filePath, enforces the size cap and renders the parser's
// result as JSON.
func (p *parser) handle(fn func(abs string, args map[string]any) (any, error)) tool.HandlerFunc {
	return func(tc *core.ToolContext, args map[string]any) (string, error) {
		abs, err := p.policy.CheckRead(tool.StringArg(args, "filePath"))
		if err != nil {
			return "", tool.GuardrailError(tc.ToolName(), err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("file not found: %s", tool.StringArg(args, "filePath"))
		}

		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", tool.StringArg(args, "filePath"))
		}

		if p.opts.MaxFileBytes > 0 && info.Size() > p.opts.MaxFileBytes {
			return "", fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), p.opts.MaxFileBytes)
		}

		result, err := fn(abs, args)
		if err != nil {
			return "", err
		}

		tc.LogDebug("document.parsed", "path", abs, "bytes", info.Size())

		return tool.JSONResult(result)
	}
}

func (p *parser) parseAny(abs string, args map[string]any) (any, error) {
	opts, _ := args["options"].(map[string]any)
	if opts == nil {
		opts = map[string]any{}
	}

	switch ext := strings.ToLower(filepath.Ext(abs)); ext {
	case ".pdf":
		return p.parsePDF(abs, tool.IntArg(opts, "maxPages", DefaultMaxPages))
	case ".docx":
		return p.parseDocx(abs)
	case ".xlsx", ".xlsm":
		return p.parseExcel(abs, tool.StringArg(opts, "sheetName"), tool.BoolArg(opts, "asJson", false))
	case ".csv":
		return p.parseCSV(abs, tool.StringArg(opts, "delimiter"), tool.BoolArg(opts, "asJson", false))
	case ".json":
		return p.parseJSON(abs)
	case ".txt", ".md", ".markdown":
		return p.parseText(abs)
	default:
		return nil, fmt.Errorf("%w: %q. Supported: .pdf, .docx, .xlsx, .csv, .json, .txt, .md", ErrUnsupportedType, ext)
	}
}

// PDFResult is the parse_pdf payload.
type PDFResult struct {
	Success     bool   `json:"success"`
	Text        string `json:"text"`
	NumPages    int    `json:"numPages"`
	ParsedPages int    `json:"parsedPages"`
}

func (p *parser) parsePDF(abs string, maxPages int) (*PDFResult, error) {
	f, r, err := pdf.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	limit := total
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}

	var b strings.Builder

	for i := 1; i <= limit; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("parse pdf page %d: %w", i, err)
		}

		b.WriteString(text)
		b.WriteString("\n")
	}

	return &PDFResult{Success: true, Text: b.String(), NumPages: total, ParsedPages: limit}, nil
}

// DocxResult is the parse_docx payload.
type DocxResult struct {
	Success    bool   `json:"success"`
	Text       string `json:"text"`
	HTML       string `json:"html"`
	Paragraphs int    `json:"paragraphs"`
}

func (p *parser) parseDocx(abs string) (*DocxResult, error) {
	zr, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}
	defer zr.Close()

	var body io.ReadCloser

	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			if body, err = f.Open(); err != nil {
				return nil, fmt.Errorf("parse docx: %w", err)
			}
			break
		}
	}

	if body == nil {
		return nil, errors.New("parse docx: word/document.xml missing")
	}
	defer body.Close()

	paragraphs, err := docxParagraphs(body)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var h strings.Builder
	for _, para := range paragraphs {
		h.WriteString("<p>" + html.EscapeString(para) + "</p>")
	}

	return &DocxResult{
		Success:    true,
		Text:       strings.Join(paragraphs, "\n"),
		HTML:       h.String(),
		Paragraphs: len(paragraphs),
	}, nil
}

// docxParagraphs walks WordprocessingML and returns the text of each w:p.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}

// TableResult is the parse_excel and parse_csv payload.
type TableResult struct {
	Success         bool                `json:"success"`
	SheetName       string              `json:"sheetName,omitempty"`
	AvailableSheets []string            `json:"availableSheets,omitempty"`
	RowCount        int                 `json:"rowCount"`
	Text            string              `json:"text,omitempty"`
	Data            []map[string]string `json:"data,omitempty"`
}

func (p *parser) parseExcel(abs, sheet string, asJSON bool) (*TableResult, error) {
	f, err := excelize.OpenFile(abs)
	if err != nil {
		return nil, fmt.Errorf("parse excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("parse excel: workbook has no sheets")
	}

	if sheet == "" {
		sheet = sheets[0]
	}

	if !slices.Contains(sheets, sheet) {
		return nil, fmt.Errorf("%w: %s. Available: %s", ErrSheetNotFound, sheet, strings.Join(sheets, ", "))
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("parse excel: %w", err)
	}

	res := tabulate(rows, asJSON)
	res.SheetName = sheet
	res.AvailableSheets = sheets

	return res, nil
}

func (p *parser) parseCSV(abs, delimiter string, asJSON bool) (*TableResult, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	if delimiter != "" {
		d, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) {
			return nil, &tool.ValidationError{Field: "delimiter", Message: "must be a single character"}
		}
		r.Comma = d
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	return tabulate(rows, asJSON), nil
}

// tabulate renders rows as tab separated text or, with asJSON, as objects
// keyed by the header row.
func tabulate(rows [][]string, asJSON bool) *TableResult {
	if !asJSON {
		lines := make([]string, len(rows))
		for i, row := range rows {
			lines[i] = strings.Join(row, "\t")
		}

		return &TableResult{Success: true, RowCount: len(rows), Text: strings.Join(lines, "\n")}
	}

	data := []map[string]string{}

	if len(rows) > 0 {
		header := rows[0]
		for _, row := range rows[1:] {
			obj := make(map[string]string, len(header))
			for i, col := range header {
				if i < len(row) && row[i] != "" {
					obj[col] = row[i]
				}
			}
			data = append(data, obj)
		}
	}

	return &TableResult{Success: true, RowCount: len(data), Data: data}
}

func (p *parser) parseJSON(abs string) (any, error) {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	var data any

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	kind, size := "value", 0

	switch v := data.(type) {
	case []any:
		kind, size = "array", len(v)
	case map[string]any:
		kind, size = "object", len(v)
	}

	return map[string]any{"success": true, "data": data, "type": kind, "size": size}, nil
}

func (p *parser) parseText(abs string) (any, error) {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	text := string(raw)

	return map[string]any{"success": true, "text": text, "lines": strings.Count(text, "\n") + 1}, nil
}
