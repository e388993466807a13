// Package docstore manages uploaded documents on disk and keeps the local
// knowledge index in sync with them.
package docstore

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"llm-proxy/internal/adapter/knowledge"
	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
)

const indexFile = "index.json"

// Record describes one stored document.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Size      int64     `json:"size"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the store contents.
type Stats struct {
	Count      int            `json:"count"`
	TotalBytes int64          `json:"total_bytes"`
	ByType     map[string]int `json:"by_type"`
}

// Store persists documents under a data directory and mirrors their
// extracted text into the knowledge index. The record index is kept in a
// JSON file rewritten atomically on every mutation.
type Store struct {
	mu      sync.RWMutex
	dir     string
	maxSize int64
	allowed map[string]bool
	records map[string]Record
	order   []string
	index   *knowledge.LocalIndex
	logger  *slog.Logger
}

// New opens the store at cfg.DataDir, loading any existing record index and
// re-extracting stored files into the knowledge index. A file that fails
// re-extraction is logged and skipped; it never aborts the load.
func New(cfg config.DocumentsConfig, index *knowledge.LocalIndex, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}

	st := &Store{
		dir:     cfg.DataDir,
		maxSize: cfg.MaxFileSize,
		allowed: allowed,
		records: make(map[string]Record),
		index:   index,
		logger:  logger,
	}

	if err := st.load(); err != nil {
		return nil, err
	}
	return st, nil
}

// Add validates and stores a document, indexes its extracted text, and
// persists the updated record index.
func (st *Store) Add(filename string, data []byte) (Record, error) {
	const op = "Store.Add"

	if filename == "" {
		return Record{}, domain.NewDomainError(op, domain.ErrValidation, "empty filename")
	}
	ext := extension(filename)
	if ext == "" || !st.allowed[ext] {
		return Record{}, domain.NewDomainError(op, domain.ErrValidation,
			fmt.Sprintf("file type %q is not allowed", ext))
	}
	if int64(len(data)) > st.maxSize {
		return Record{}, domain.NewDomainError(op, domain.ErrValidation,
			fmt.Sprintf("file exceeds %d bytes", st.maxSize))
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	if err := os.WriteFile(st.filePath(id, ext), data, 0o644); err != nil {
		return Record{}, fmt.Errorf("%s: write file: %w", op, err)
	}

	rec := Record{
		ID:        id,
		Name:      filename,
		Kind:      domain.FragmentText,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}

	doc, err := knowledge.Extract(filename, data)
	if err != nil {
		// Extraction trouble downgrades the document to name-only matching.
		st.logger.Warn("text extraction failed", "name", filename, "error", err)
		doc = knowledge.Document{Name: filename, Kind: domain.FragmentText}
	}
	doc.ID = id
	rec.Kind = doc.Kind
	rec.Width = doc.Width
	rec.Height = doc.Height

	st.mu.Lock()
	st.records[id] = rec
	st.order = append(st.order, id)
	err = st.save()
	if err != nil {
		// Roll back so a failed add leaves no trace: no record, no stored
		// file, nothing searchable.
		delete(st.records, id)
		st.order = st.order[:len(st.order)-1]
	}
	st.mu.Unlock()
	if err != nil {
		if rmErr := os.Remove(st.filePath(id, ext)); rmErr != nil && !os.IsNotExist(rmErr) {
			st.logger.Warn("remove stored file failed", "id", id, "error", rmErr)
		}
		return Record{}, fmt.Errorf("%s: persist index: %w", op, err)
	}
	st.index.Add(doc)

	st.logger.Info("document stored", "id", id, "name", filename, "bytes", rec.Size)
	return rec, nil
}

// Get returns the record for id.
func (st *Store) Get(id string) (Record, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.records[id]
	if !ok {
		return Record{}, domain.NewDomainError("Store.Get", domain.ErrNotFound, id)
	}
	return rec, nil
}

// List returns all records in insertion order.
func (st *Store) List() []Record {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Record, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.records[id])
	}
	return out
}

// Delete removes a document, its stored file, and its index entry. Deleting
// an id twice reports not-found on the second call.
func (st *Store) Delete(id string) error {
	const op = "Store.Delete"

	st.mu.Lock()
	rec, ok := st.records[id]
	if !ok {
		st.mu.Unlock()
		return domain.NewDomainError(op, domain.ErrNotFound, id)
	}
	delete(st.records, id)
	for i, oid := range st.order {
		if oid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	err := st.save()
	st.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: persist index: %w", op, err)
	}

	if err := os.Remove(st.filePath(id, extension(rec.Name))); err != nil && !os.IsNotExist(err) {
		st.logger.Warn("remove stored file failed", "id", id, "error", err)
	}
	if err := st.index.Remove(id); err != nil {
		st.logger.Warn("remove index entry failed", "id", id, "error", err)
	}

	st.logger.Info("document deleted", "id", id, "name", rec.Name)
	return nil
}

// Stats returns aggregate counts keyed by file extension.
func (st *Store) Stats() Stats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	stats := Stats{ByType: make(map[string]int)}
	for _, rec := range st.records {
		stats.Count++
		stats.TotalBytes += rec.Size
		stats.ByType[extension(rec.Name)]++
	}
	return stats
}

// load reads the record index and re-extracts each stored file into the
// knowledge index.
func (st *Store) load() error {
	data, err := os.ReadFile(filepath.Join(st.dir, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read record index: %w", err)
	}

	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("parse record index: %w", err)
	}

	for _, rec := range recs {
		st.records[rec.ID] = rec
		st.order = append(st.order, rec.ID)

		raw, err := os.ReadFile(st.filePath(rec.ID, extension(rec.Name)))
		if err != nil {
			st.logger.Warn("stored file unreadable, indexing name only",
				"id", rec.ID, "name", rec.Name, "error", err)
			st.index.Add(knowledge.Document{ID: rec.ID, Name: rec.Name, Kind: rec.Kind})
			continue
		}
		doc, err := knowledge.Extract(rec.Name, raw)
		if err != nil {
			st.logger.Warn("re-extraction failed, indexing name only",
				"id", rec.ID, "name", rec.Name, "error", err)
			doc = knowledge.Document{Name: rec.Name, Kind: rec.Kind}
		}
		doc.ID = rec.ID
		st.index.Add(doc)
	}
	return nil
}

// save rewrites the record index atomically. Caller holds the write lock.
func (st *Store) save() error {
	recs := make([]Record, 0, len(st.order))
	for _, id := range st.order {
		recs = append(recs, st.records[id])
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(st.dir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (st *Store) filePath(id, ext string) string {
	if ext != "" {
		return filepath.Join(st.dir, id+"."+ext)
	}
	return filepath.Join(st.dir, id)
}

// extension returns the lower-cased filename extension without the dot.
func extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}
