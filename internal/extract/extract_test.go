package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

// mockRunner is a test double for Runner.
type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

// createTestDOCX creates a minimal DOCX file in memory.
func createTestDOCX(documentXML string) []byte {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	contentTypes, _ := w.Create("[Content_Types].xml")
	contentTypes.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`))

	if documentXML != "" {
		doc, _ := w.Create("word/document.xml")
		doc.Write([]byte(documentXML))
	}

	w.Close()
	return buf.Bytes()
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestSupported(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"notes.txt", true},
		{"REPORT.PDF", true},
		{"memo.docx", true},
		{"memo.doc", false},
		{"image.png", false},
		{"noext", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, Supported(tt.filename))
		})
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	ex := New(nil)

	result, err := ex.Extract(context.Background(), []byte("data"), "photo.png")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, rag.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), ".png")
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

func TestExtract_Text(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"utf8", []byte("héllo wörld"), "héllo wörld"},
		{"utf8 with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "hello"...), "hello"},
		{"latin1 fallback", []byte{'c', 'a', 'f', 0xE9}, "café"},
		{"empty", nil, ""},
	}

	ex := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ex.Extract(context.Background(), tt.data, "doc.txt")
			require.NoError(t, err)
			assert.Equal(t, FormatText, result.Format)
			assert.Equal(t, tt.want, result.Text)
		})
	}
}

// ---------------------------------------------------------------------------
// DOCX
// ---------------------------------------------------------------------------

func TestExtract_DOCX(t *testing.T) {
	docXML := `<?xml version="1.0" encoding="UTF-8"?>
<w:document ` + wordNS + `>
<w:body>
<w:p><w:r><w:t>First paragraph</w:t></w:r><w:r><w:t xml:space="preserve"> continues.</w:t></w:r></w:p>
<w:p><w:r><w:t>Second</w:t><w:tab/><w:t>tabbed</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Cell text</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
</w:body>
</w:document>`

	result, err := New(nil).Extract(context.Background(), createTestDOCX(docXML), "memo.docx")
	require.NoError(t, err)
	assert.Equal(t, FormatDOCX, result.Format)
	assert.Equal(t, "First paragraph continues.\nSecond\ttabbed\nCell text", result.Text)
}

func TestExtract_DOCXEmptyBody(t *testing.T) {
	docXML := `<w:document ` + wordNS + `><w:body></w:body></w:document>`

	result, err := New(nil).Extract(context.Background(), createTestDOCX(docXML), "empty.docx")
	require.NoError(t, err)
	assert.Empty(t, result.Text)
}

func TestExtract_DOCXErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("plain bytes")},
		{"missing document.xml", createTestDOCX("")},
		{"malformed xml", createTestDOCX(`<w:document ` + wordNS + `><w:body><w:p>`)},
	}

	ex := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ex.Extract(context.Background(), tt.data, "broken.docx")
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, rag.ErrExtraction)
		})
	}
}

func TestExtract_DOCXSizeLimit(t *testing.T) {
	para := `<w:p><w:r><w:t>` + strings.Repeat("a", 100) + `</w:t></w:r></w:p>`
	body := `<w:document ` + wordNS + `><w:body>` + strings.Repeat(para, 200) + `</w:body></w:document>`
	data := createTestDOCX(body)
	require.Less(t, len(data), 2048, "archive should compress well below the limit")

	result, err := New(nil, WithMaxTextBytes(4096)).Extract(context.Background(), data, "bomb.docx")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, rag.ErrExtraction)
	assert.ErrorIs(t, err, ErrTooLarge)

	result, err = New(nil, WithMaxTextBytes(int64(len(body)))).Extract(context.Background(), data, "fits.docx")
	require.NoError(t, err)
	assert.Len(t, result.Text, 200*100+199)
}

func TestLimitedReader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int64
		wantErr error
	}{
		{"under limit", "hello", 10, nil},
		{"exactly at limit", "hello", 5, nil},
		{"over limit", "hello world", 5, ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(&limitedReader{r: strings.NewReader(tt.input), n: tt.limit})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(got))
		})
	}
}

func TestWithMaxTextBytes_IgnoresNonPositive(t *testing.T) {
	assert.Equal(t, int64(DefaultMaxTextBytes), New(nil, WithMaxTextBytes(0)).maxText)
	assert.Equal(t, int64(DefaultMaxTextBytes), New(nil, WithMaxTextBytes(-1)).maxText)
	assert.Equal(t, int64(64), New(nil, WithMaxTextBytes(64)).maxText)
}

// ---------------------------------------------------------------------------
// PDF
// ---------------------------------------------------------------------------

func TestExtract_PDF(t *testing.T) {
	runner := &mockRunner{output: []byte("Page one text.\fPage two text.")}
	ex := New(runner)

	result, err := ex.Extract(context.Background(), []byte("%PDF-1.7\n..."), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, result.Format)
	assert.Equal(t, "Page one text.\n\nPage two text.", result.Text)

	assert.Equal(t, "pdftotext", runner.name)
	require.NotEmpty(t, runner.args)
	assert.Equal(t, "-", runner.args[len(runner.args)-1])
}

func TestExtract_PDFErrors(t *testing.T) {
	tests := []struct {
		name   string
		runner Runner
		data   []byte
	}{
		{"bad header", &mockRunner{}, []byte("not a pdf")},
		{"no runner", nil, []byte("%PDF-1.4")},
		{"runner failure", &mockRunner{err: errors.New("exit status 1")}, []byte("%PDF-1.4")},
		{"output over limit", &mockRunner{output: bytes.Repeat([]byte("x"), 65)}, []byte("%PDF-1.4")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := New(tt.runner, WithMaxTextBytes(64)).Extract(context.Background(), tt.data, "x.pdf")
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, rag.ErrExtraction)
		})
	}
}
