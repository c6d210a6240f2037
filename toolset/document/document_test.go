package document

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/guard"
	"github.com/hupe1980/toolmesh/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> report</w:t></w:r></w:p>
    <w:p><w:r><w:t>Revenue</w:t><w:tab/><w:t>&lt;up&gt;</w:t></w:r></w:p>
  </w:body>
</w:document>`

func setup(t *testing.T, optFns ...func(o *Options)) (map[string]tool.Tool, string) {
	t.Helper()

	root := t.TempDir()

	policy, err := guard.NewPathPolicy(root)
	require.NoError(t, err)

	tools := map[string]tool.Tool{}
	for _, tl := range Tools(policy, optFns...) {
		tools[tl.Name()] = tl
	}

	return tools, root
}

func call(t *testing.T, tl tool.Tool, args map[string]any) (map[string]any, error) {
	t.Helper()

	out, err := tl.Call(core.NewStandaloneToolContext(context.Background(), "c", nil), args)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))

	return m, nil
}

func writeDocx(t *testing.T, path string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func writeXlsx(t *testing.T, path string) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetCellValue("Sheet1", "A1", "name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "qty"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "bolt"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 12))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "nut"))
	require.NoError(t, f.SetCellValue("Sheet1", "B3", 30))

	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "hello"))

	require.NoError(t, f.SaveAs(path))
}

func TestParseDocx(t *testing.T) {
	tools, root := setup(t)
	writeDocx(t, filepath.Join(root, "report.docx"))

	m, err := call(t, tools["parse_docx"], map[string]any{"filePath": "report.docx"})
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report\nRevenue\t<up>", m["text"])
	assert.Equal(t, "<p>Quarterly report</p><p>Revenue\t&lt;up&gt;</p>", m["html"])
	assert.Equal(t, 2.0, m["paragraphs"])
}

func TestParseExcel(t *testing.T) {
	tools, root := setup(t)
	writeXlsx(t, filepath.Join(root, "stock.xlsx"))

	m, err := call(t, tools["parse_excel"], map[string]any{"filePath": "stock.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", m["sheetName"])
	assert.Equal(t, []any{"Sheet1", "Notes"}, m["availableSheets"])
	assert.Equal(t, "name\tqty\nbolt\t12\nnut\t30", m["text"])

	m, err = call(t, tools["parse_excel"], map[string]any{"filePath": "stock.xlsx", "asJson": true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, m["rowCount"])
	assert.Equal(t, map[string]any{"name": "bolt", "qty": "12"}, m["data"].([]any)[0])

	m, err = call(t, tools["parse_excel"], map[string]any{"filePath": "stock.xlsx", "sheetName": "Notes"})
	require.NoError(t, err)
	assert.Equal(t, "hello", m["text"])

	_, err = call(t, tools["parse_excel"], map[string]any{"filePath": "stock.xlsx", "sheetName": "Ghost"})
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestParseCSV(t *testing.T) {
	tools, root := setup(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "people.csv"), []byte("name;age\nada;36\nalan;41\n"), 0o644))

	m, err := call(t, tools["parse_csv"], map[string]any{"filePath": "people.csv", "delimiter": ";", "asJson": true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, m["rowCount"])
	assert.Equal(t, map[string]any{"name": "alan", "age": "41"}, m["data"].([]any)[1])

	m, err = call(t, tools["parse_csv"], map[string]any{"filePath": "people.csv"})
	require.NoError(t, err)
	assert.Equal(t, "name;age\nada;36\nalan;41", m["text"])

	_, err = call(t, tools["parse_csv"], map[string]any{"filePath": "people.csv", "delimiter": "::"})

	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeValidation, te.Code)
}

func TestParseDocument_Dispatch(t *testing.T) {
	tools, root := setup(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), []byte(`[1, 2, 3]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Title\nbody\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.csv"), []byte("x,y\n1,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.bmp"), []byte("BM"), 0o644))
	writeDocx(t, filepath.Join(root, "report.docx"))

	m, err := call(t, tools["parse_document"], map[string]any{"filePath": "data.json"})
	require.NoError(t, err)
	assert.Equal(t, "array", m["type"])
	assert.Equal(t, 3.0, m["size"])

	m, err = call(t, tools["parse_document"], map[string]any{"filePath": "README.md"})
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody\n", m["text"])
	assert.Equal(t, 3.0, m["lines"])

	m, err = call(t, tools["parse_document"], map[string]any{"filePath": "a.csv", "options": map[string]any{"asJson": true}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m["rowCount"])

	m, err = call(t, tools["parse_document"], map[string]any{"filePath": "report.docx"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m["text"].(string), "Quarterly"))

	_, err = call(t, tools["parse_document"], map[string]any{"filePath": "image.bmp"})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestParse_Guards(t *testing.T) {
	tools, root := setup(t, func(o *Options) { o.MaxFileBytes = 4 })
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fake.pdf"), []byte("nope"), 0o644))

	_, err := call(t, tools["parse_document"], map[string]any{"filePath": "../outside.txt"})

	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeGuardrail, te.Code)

	_, err = call(t, tools["parse_document"], map[string]any{"filePath": "big.txt"})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = call(t, tools["parse_pdf"], map[string]any{"filePath": "missing.pdf"})
	assert.ErrorContains(t, err, "file not found")

	_, err = call(t, tools["parse_pdf"], map[string]any{"filePath": "fake.pdf"})
	assert.ErrorContains(t, err, "parse pdf")
}
