package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// onePagePDF assembles a minimal single-page PDF containing one text
// line, computing the xref offsets so the file is well-formed.
func onePagePDF(text string) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 6)
	obj := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>")
	obj(4, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	obj(5, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))

	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for n := 1; n <= 5; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestExtractTextDeterministic(t *testing.T) {
	e := New(nil)
	payload := onePagePDF("Same payload same blocks")
	opts := Options{Tables: true}

	first, err := e.Extract(context.Background(), payload, opts)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	second, err := e.Extract(context.Background(), payload, opts)
	if err != nil {
		t.Fatalf("Extract() second pass error = %v", err)
	}

	if len(first.TextBlocks) != 1 {
		t.Fatalf("len(TextBlocks) = %d, want 1", len(first.TextBlocks))
	}
	if first.TextBlocks[0].Page != 1 {
		t.Errorf("page = %d, want 1", first.TextBlocks[0].Page)
	}
	if !strings.Contains(first.TextBlocks[0].Text, "Same payload same blocks") {
		t.Errorf("text = %q, want the page's text line", first.TextBlocks[0].Text)
	}
	if !reflect.DeepEqual(first.TextBlocks, second.TextBlocks) {
		t.Errorf("repeated extraction produced different text blocks:\nfirst:  %#v\nsecond: %#v",
			first.TextBlocks, second.TextBlocks)
	}
}

func TestExtractRejectsEmptyPayload(t *testing.T) {
	e := New(nil)

	_, err := e.Extract(context.Background(), nil, Options{})

	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("Extract(empty) error = %v, want *ExtractionError", err)
	}
	if exErr.Reason != "empty payload" {
		t.Errorf("reason = %q", exErr.Reason)
	}
}

func TestExtractRejectsMalformedPayload(t *testing.T) {
	e := New(nil)

	_, err := e.Extract(context.Background(), []byte("this is not a pdf"), Options{})

	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("Extract(garbage) error = %v, want *ExtractionError", err)
	}
}
