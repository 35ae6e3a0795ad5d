// Package loader extracts plain text from the source document.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfqa/internal/apperrors"
	"pdfqa/internal/domain"
)

// pageSource is the per-page view of a decoded document.
type pageSource interface {
	NumPage() int
	PageText(i int) (string, error)
}

// Loader reads PDF documents page by page. Plain .txt and .md files are read verbatim.
type Loader struct {
	logger *slog.Logger
}

// New creates a loader that reports skipped pages to logger.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load opens path, extracts the text of every page in order and closes the file
// before returning.
func (l *Loader) Load(ctx context.Context, path string) (domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Document{}, apperrors.ErrNotFound.WithCause(err)
		}
		return domain.Document{}, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.Document{}, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return domain.Document{}, apperrors.ErrNotFound.WithMessage(path + " is a directory")
	}

	var content string
	var pages int
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := io.ReadAll(f)
		if err != nil {
			return domain.Document{}, fmt.Errorf("reading document: %w", err)
		}
		content, pages = string(data), 1
	default:
		src, err := openPDF(f, info.Size())
		if err != nil {
			return domain.Document{}, apperrors.ErrParse.WithCause(err)
		}
		pages = src.NumPage()
		content, err = l.extract(ctx, src)
		if err != nil {
			return domain.Document{}, err
		}
	}

	l.logger.Debug("document loaded", "path", path, "pages", pages, "chars", len(content))
	return domain.Document{
		ID:      hashString(content),
		Path:    path,
		Content: content,
		Pages:   pages,
	}, nil
}

// extract concatenates page texts in page order. A page that fails to decode
// contributes nothing.
func (l *Loader) extract(ctx context.Context, src pageSource) (string, error) {
	var sb strings.Builder
	for i := 1; i <= src.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := src.PageText(i)
		if err != nil {
			l.logger.Warn("failed to extract text from page", "page", i, "error", err)
			continue
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

type pdfPages struct {
	r *pdf.Reader
}

func openPDF(r io.ReaderAt, size int64) (p pdfPages, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p, err = pdfPages{}, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return pdfPages{}, err
	}
	return pdfPages{r: reader}, nil
}

func (p pdfPages) NumPage() int { return p.r.NumPage() }

func (p pdfPages) PageText(i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", i, r)
		}
	}()
	page := p.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
