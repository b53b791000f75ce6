package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// docxBody is the archive member holding the document text.
const docxBody = "word/document.xml"

// errNoDocumentXML is returned for archives that are not Word documents.
var errNoDocumentXML = errors.New("docx: archive has no " + docxBody)

// docxText extracts paragraph text from a DOCX archive. Paragraphs, including
// those inside tables, are separated by newlines; w:tab becomes a tab and
// w:br a newline. Bodies that decompress past limit bytes fail with
// ErrTooLarge.
func docxText(data []byte, limit int64) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx: open archive: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != docxBody {
			continue
		}

		// The header size can lie; the reader below enforces the limit.
		if file.UncompressedSize64 > uint64(limit) {
			return "", fmt.Errorf("docx: %s is %d bytes uncompressed, limit %d: %w",
				docxBody, file.UncompressedSize64, limit, ErrTooLarge)
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("docx: open %s: %w", docxBody, err)
		}
		defer rc.Close()

		return parseDocumentXML(&limitedReader{r: rc, n: limit})
	}
	return "", errNoDocumentXML
}

// limitedReader fails with ErrTooLarge once more than n bytes have been read.
type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return 0, ErrTooLarge
	}
	return n, err
}

// parseDocumentXML streams WordprocessingML and collects run text.
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		out    strings.Builder
		inText bool
		paras  int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx: parse %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if paras > 0 {
					out.WriteByte('\n')
				}
				paras++
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}

	return strings.TrimSpace(out.String()), nil
}
