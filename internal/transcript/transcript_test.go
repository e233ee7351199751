package transcript

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a minimal PDF with one Helvetica text line per page.
func buildPDF(t *testing.T, lines ...string) []byte {
	t.Helper()

	n := len(lines)
	// 1 catalog, 2 pages, 3 font, then a page and a content stream per line.
	objects := make([]string, 3+2*n)
	kids := make([]string, n)
	for i, line := range lines {
		pageID := 4 + 2*i
		contentID := pageID + 1
		kids[i] = fmt.Sprintf("%d 0 R", pageID)
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", line)
		objects[pageID-1] = fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentID)
		objects[contentID-1] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream)
	}
	objects[0] = "<< /Type /Catalog /Pages 2 0 R >>"
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n)
	objects[2] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractPages(t *testing.T) {
	data := buildPDF(t, "Prepared remarks", "Questions and answers")
	pages, err := ExtractPages(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Number != 1 || !strings.Contains(pages[0].Text, "Prepared remarks") {
		t.Fatalf("unexpected first page %#v", pages[0])
	}
	if pages[1].Number != 2 || !strings.Contains(pages[1].Text, "Questions and answers") {
		t.Fatalf("unexpected second page %#v", pages[1])
	}
}

func TestTranscriptTextJoinsPagesInOrder(t *testing.T) {
	tr := &Transcript{Pages: []Page{{Number: 1, Text: "alpha "}, {Number: 3, Text: "gamma"}}}
	if got := tr.Text(); got != "alpha gamma" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestReadExtractsTranscript(t *testing.T) {
	data := buildPDF(t, "Prepared remarks", "Questions and answers")
	tr, err := Read(data)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tr.PageCount != 2 || len(tr.Pages) != 2 {
		t.Fatalf("expected 2 pages, got count %d with %d text pages", tr.PageCount, len(tr.Pages))
	}
	if got := tr.Text(); got != "Prepared remarksQuestions and answers" {
		t.Fatalf("unexpected text %q", got)
	}
	if tr.Hash != Hash(data) {
		t.Fatalf("hash mismatch")
	}
}

func TestReadRejectsPDFWithoutText(t *testing.T) {
	_, err := Read(buildPDF(t, " "))
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
}

func TestReadRejectsNonPDF(t *testing.T) {
	_, err := Read([]byte("this is not a pdf"))
	if !errors.Is(err, ErrUnreadablePDF) {
		t.Fatalf("expected ErrUnreadablePDF, got %v", err)
	}
}

func TestExtractPagesRejectsNonPDF(t *testing.T) {
	data := []byte("plain text")
	if _, err := ExtractPages(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestHashIsStable(t *testing.T) {
	a := Hash([]byte("transcript"))
	b := Hash([]byte("transcript"))
	c := Hash([]byte("transcript2"))
	if a != b || a == c || len(a) != 64 {
		t.Fatalf("unexpected hashes %s %s %s", a, b, c)
	}
}
