// Package parser turns uploaded resumes into structured profiles: PDF
// text extraction delegated to the eino PDF parser, followed by LLM
// structuring of the extracted text.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoparser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"
)

// ErrExtractionFailure marks unreadable or empty PDF input.
var ErrExtractionFailure = errors.New("resume text extraction failed")

const extractTimeout = 30 * time.Second

// EinoPDFTextExtractor extracts plain text from PDF resumes using the
// eino PDF parser.
type EinoPDFTextExtractor struct {
	parser *pdf.PDFParser
	logger zerolog.Logger
}

// PDFOption configures an EinoPDFTextExtractor.
type PDFOption func(*EinoPDFTextExtractor)

// WithPDFLogger sets a custom logger.
func WithPDFLogger(logger zerolog.Logger) PDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = logger
	}
}

// NewEinoPDFTextExtractor builds an extractor that returns the whole
// document as one continuous string (no per-page splitting).
func NewEinoPDFTextExtractor(ctx context.Context, options ...PDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create eino PDF parser: %w", err)
	}
	e := &EinoPDFTextExtractor{
		parser: p,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// ExtractFromReader extracts the full text of the PDF behind r. The uri is
// used only for logging and metadata.
func (e *EinoPDFTextExtractor) ExtractFromReader(ctx context.Context, r io.Reader, uri string) (string, map[string]interface{}, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, r, einoparser.WithURI(uri))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailure, uri, err)
	}
	if len(docs) == 0 {
		return "", nil, fmt.Errorf("%w: %s: parser returned no documents", ErrExtractionFailure, uri)
	}

	var full bytes.Buffer
	for i, doc := range docs {
		full.WriteString(doc.Content)
		if i < len(docs)-1 {
			full.WriteString("\n\n")
		}
	}

	metadata := map[string]interface{}{
		"document_count":         len(docs),
		"text_length":            full.Len(),
		"processing_duration_ms": time.Since(start).Milliseconds(),
	}
	if docs[0].MetaData != nil {
		for k, v := range docs[0].MetaData {
			metadata[k] = v
		}
	}

	e.logger.Debug().
		Str("uri", uri).
		Int("chars", full.Len()).
		Dur("took", time.Since(start)).
		Msg("pdf text extracted")

	return full.String(), metadata, nil
}

// ExtractFromBytes extracts text from an in-memory PDF.
func (e *EinoPDFTextExtractor) ExtractFromBytes(ctx context.Context, data []byte, uri string) (string, map[string]interface{}, error) {
	return e.ExtractFromReader(ctx, bytes.NewReader(data), uri)
}
