package pipeline

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snac-tools/eacsupp/internal/model"
)

// Renderer serializes supplements
type Renderer struct{}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Marshal renders the supplement as a standalone XML document
func (r *Renderer) Marshal(supp *model.Supplement) ([]byte, error) {
	body, err := xml.Marshal(supp)
	if err != nil {
		return nil, fmt.Errorf("marshal supplement: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// WriteFile writes the supplement to path. The document is staged in a
// temporary file next to path and renamed into place, so a crash never
// leaves a partial output that a later run would skip.
func (r *Renderer) WriteFile(supp *model.Supplement, path string) (err error) {
	data, err := r.Marshal(supp)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
