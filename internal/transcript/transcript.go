// Package transcript turns an uploaded earnings-call PDF into plain text.
package transcript

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrUnreadablePDF = errors.New("error reading PDF")
	ErrNoText        = errors.New("no extractable text found in PDF")
)

// Page is the extracted text of a single PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Transcript is the text content of an uploaded PDF.
type Transcript struct {
	Hash      string
	PageCount int
	Pages     []Page
}

// Text joins the page texts in page order.
func (t *Transcript) Text() string {
	var b strings.Builder
	for _, p := range t.Pages {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Read validates data as a PDF and extracts its text.
func Read(data []byte) (*Transcript, error) {
	pageCount, err := validate(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadablePDF, err)
	}

	pages, err := ExtractPages(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadablePDF, err)
	}
	if len(pages) == 0 {
		return nil, ErrNoText
	}

	return &Transcript{
		Hash:      Hash(data),
		PageCount: pageCount,
		Pages:     pages,
	}, nil
}

func validate(rs io.ReadSeeker) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(rs, cfg); err != nil {
		return 0, fmt.Errorf("failed to validate PDF: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	pageCount, err := api.PageCount(rs, cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pageCount, nil
}

// ExtractPages returns the plain text of every page that has any.
func ExtractPages(r io.ReaderAt, size int64) ([]Page, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var pages []Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
