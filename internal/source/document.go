// Package source loads extracted documents and ground-truth events.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/worker"
	"go.uber.org/zap"
)

// DocumentFile is the file name extractor output is stored under
const DocumentFile = "document.json"

// Loader loads extracted documents and lists the available IDs
type Loader interface {
	worker.DocumentLoader
	List(ctx context.Context) ([]string, error)
}

// extractorOutput is the JSON written by the PDF extractor
type extractorOutput struct {
	DocumentID string            `json:"document_id"`
	Source     string            `json:"source"`
	Year       int               `json:"year"`
	Pages      []json.RawMessage `json:"pages"`
	NPages     int               `json:"n_pages"`
	Error      *string           `json:"error"`
}

// DecodeDocument parses extractor output. id is the document's storage ID,
// used when the payload carries no document_id. Pages may be plain strings
// or {"index", "text"} objects.
func DecodeDocument(id string, data []byte) (*model.Document, error) {
	var out extractorOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	if out.Error != nil && *out.Error != "" && len(out.Pages) == 0 {
		return nil, fmt.Errorf("document %s: extraction failed: %s", id, *out.Error)
	}

	doc := &model.Document{
		ID:     out.DocumentID,
		Source: out.Source,
		Year:   out.Year,
		Pages:  make([]model.Page, 0, len(out.Pages)),
	}
	if doc.ID == "" {
		doc.ID = documentIDFromPath(id)
	}
	if year, src, ok := splitStorageID(id); ok {
		if doc.Year == 0 {
			doc.Year = year
		}
		if doc.Source == "" {
			doc.Source = src
		}
	}

	for i, raw := range out.Pages {
		page := model.Page{Index: i + 1}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			page.Text = text
		} else {
			var obj struct {
				Index int    `json:"index"`
				Page  int    `json:"page"`
				Text  string `json:"text"`
			}
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, fmt.Errorf("document %s: page %d: %w", id, i+1, err)
			}
			page.Text = obj.Text
		}
		doc.Pages = append(doc.Pages, page)
	}

	if out.NPages != 0 && out.NPages != len(doc.Pages) {
		return nil, &model.StructuralError{
			Path:   id + ".n_pages",
			Reason: fmt.Sprintf("declares %d pages, found %d", out.NPages, len(doc.Pages)),
		}
	}
	return doc, nil
}

// splitStorageID parses "<year>/<source>" style IDs
func splitStorageID(id string) (int, string, bool) {
	id = strings.TrimSuffix(filepath.ToSlash(id), "/"+DocumentFile)
	parts := strings.Split(id, "/")
	if len(parts) < 2 {
		return 0, "", false
	}
	year, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, "", false
	}
	return year, parts[len(parts)-1], true
}

func documentIDFromPath(id string) string {
	id = strings.TrimSuffix(filepath.ToSlash(id), "/"+DocumentFile)
	id = strings.TrimSuffix(id, ".json")
	return strings.ReplaceAll(strings.Trim(id, "/"), "/", "-")
}

// DiskLoader reads extractor output from a directory tree laid out as
// <root>/<year>/<source>/document.json
type DiskLoader struct {
	root string
	log  *zap.Logger
}

// NewDiskLoader creates a loader rooted at dir
func NewDiskLoader(dir string, log *zap.Logger) *DiskLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &DiskLoader{root: dir, log: log}
}

// Load reads one document. id is a path relative to the root, either a
// directory holding document.json or a JSON file.
func (l *DiskLoader) Load(ctx context.Context, id string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(l.root, filepath.FromSlash(id))
	if !strings.HasSuffix(path, ".json") {
		path = filepath.Join(path, DocumentFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return DecodeDocument(id, data)
}

// List returns the IDs of every document.json below the root, sorted
func (l *DiskLoader) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name() != DocumentFile {
			return nil
		}
		rel, err := filepath.Rel(l.root, filepath.Dir(path))
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents in %s: %w", l.root, err)
	}

	sort.Strings(ids)
	l.log.Debug("listed documents", zap.String("root", l.root), zap.Int("count", len(ids)))
	return ids, nil
}
