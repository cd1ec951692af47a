// Package ingest brings statement files into the pipeline: loading a
// single document, scanning drop directories, and watching them for
// new arrivals.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/extract"
)

// LoadDocument reads a statement file into an immutable Document.
// The extension gate runs before any bytes are read.
func LoadDocument(path string) (*extract.Document, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("unsupported or missing extension %q", ext)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(raw)
	}
	return &extract.Document{
		Name:  filepath.Base(path),
		MIME:  mimeType,
		Bytes: raw,
	}, nil
}

// HashDocument returns the hex SHA-256 of the raw bytes, used to skip
// byte-identical re-submissions within a batch.
func HashDocument(doc *extract.Document) string {
	sum := sha256.Sum256(doc.Bytes)
	return hex.EncodeToString(sum[:])
}
