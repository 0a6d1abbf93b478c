package content

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var errEmptyPDFContent = errors.New("pdf content is empty")

// IsPDF reports whether a fetched body is a PDF document.
func IsPDF(contentType string, body []byte) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "application/pdf") || bytes.HasPrefix(body, []byte("%PDF-"))
}

// ExtractTextFromPDF returns the plain text of an in-memory PDF document.
func ExtractTextFromPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errEmptyPDFContent
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
