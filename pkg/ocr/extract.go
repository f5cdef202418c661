package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Engine performs image OCR. The default implementation shells out to a
// locally installed tesseract binary; a missing binary surfaces as a
// per-document extraction error, never a crash.
type Engine interface {
	ExtractImage(ctx context.Context, path string) (string, error)
}

// TesseractEngine runs the tesseract CLI
type TesseractEngine struct {
	// Binary overrides the executable name, default "tesseract"
	Binary string
}

func (e *TesseractEngine) ExtractImage(ctx context.Context, path string) (string, error) {
	binary := e.Binary
	if binary == "" {
		binary = "tesseract"
	}

	cmd := exec.CommandContext(ctx, binary, path, "stdout")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// Extractor dispatches to a type-specific extraction strategy
type Extractor struct {
	engine Engine
}

// NewExtractor creates an extractor. engine handles image types; pass a
// TesseractEngine for the default behavior.
func NewExtractor(engine Engine) *Extractor {
	return &Extractor{engine: engine}
}

// Extract pulls raw text out of the file at path according to its MIME
// type. Callers are expected to have filtered unsupported types already.
func (e *Extractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return e.engine.ExtractImage(ctx, path)
	case "application/pdf":
		return extractPDFText(path)
	case "text/plain":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read text file: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported mime type: %s", mimeType)
	}
}

// extractPDFText reads the PDF's embedded text layer. Scanned PDFs without
// a text layer come back empty rather than failing.
func extractPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	return buf.String(), nil
}
