package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketBackups         = []byte("backups")
	bucketTemplateBackups = []byte("template_backups")
)

// Record describes one backup copy of a template file
type Record struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"template_id"`
	TemplateName string    `json:"template_name"`
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	Checksum     string    `json:"checksum"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFilter for filtering the index
type ListFilter struct {
	TemplateID string
	Limit      int
	Offset     int
}

// Stats holds index statistics
type Stats struct {
	Total     int   `json:"total"`
	Templates int   `json:"templates"`
	Bytes     int64 `json:"bytes"`
}

// Index catalogues backups in a bbolt database. Records are keyed by ID with
// a per-template secondary index ordered by creation time.
type Index struct {
	db *bolt.DB
}

// OpenIndex opens or creates the index file
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup index directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open backup index: %w", err)
	}
	idx, err := NewIndex(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// NewIndex creates the index buckets in db
func NewIndex(db *bolt.DB) (*Index, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketBackups); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketTemplateBackups); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backup buckets: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database
func (i *Index) Close() error {
	return i.db.Close()
}

func templateKey(rec *Record) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%s", rec.TemplateID, rec.CreatedAt.UnixNano(), rec.ID))
}

func templatePrefix(templateID string) []byte {
	return []byte(templateID + "/")
}

// Add stores a record, assigning an ID when it has none
func (i *Index) Add(ctx context.Context, rec *Record) error {
	if rec.TemplateID == "" {
		return fmt.Errorf("backup template id is required")
	}

	return i.db.Update(func(tx *bolt.Tx) error {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal backup record: %w", err)
		}

		if err := tx.Bucket(bucketBackups).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketTemplateBackups).Put(templateKey(rec), []byte(rec.ID))
	})
}

// Get retrieves a record by ID
func (i *Index) Get(ctx context.Context, id string) (*Record, error) {
	var rec *Record

	err := i.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBackups).Get([]byte(id))
		if data == nil {
			return nil
		}

		rec = &Record{}
		return json.Unmarshal(data, rec)
	})

	return rec, err
}

// ListByTemplate returns a template's backups, newest first
func (i *Index) ListByTemplate(ctx context.Context, templateID string) ([]*Record, error) {
	var records []*Record
	prefix := templatePrefix(templateID)

	err := i.db.View(func(tx *bolt.Tx) error {
		backups := tx.Bucket(bucketBackups)
		c := tx.Bucket(bucketTemplateBackups).Cursor()

		var ids [][]byte
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			ids = append(ids, v)
		}

		for j := len(ids) - 1; j >= 0; j-- {
			data := backups.Get(ids[j])
			if data == nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})

	return records, err
}

// List returns records with optional filtering
func (i *Index) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	if filter.TemplateID != "" {
		records, err := i.ListByTemplate(ctx, filter.TemplateID)
		if err != nil {
			return nil, err
		}
		return paginate(records, filter.Offset, filter.Limit), nil
	}

	var records []*Record

	err := i.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBackups).Cursor()

		skipped := 0
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}

			// Apply offset
			if skipped < filter.Offset {
				skipped++
				continue
			}

			records = append(records, &rec)

			// Apply limit
			if filter.Limit > 0 && len(records) >= filter.Limit {
				break
			}
		}
		return nil
	})

	return records, err
}

// Delete removes a record by ID
func (i *Index) Delete(ctx context.Context, id string) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		backups := tx.Bucket(bucketBackups)

		data := backups.Get([]byte(id))
		if data == nil {
			return nil // Already deleted
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}

		if err := tx.Bucket(bucketTemplateBackups).Delete(templateKey(&rec)); err != nil {
			return err
		}
		return backups.Delete([]byte(id))
	})
}

// Stats returns index statistics
func (i *Index) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := i.db.View(func(tx *bolt.Tx) error {
		templates := make(map[string]struct{})
		c := tx.Bucket(bucketBackups).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			stats.Total++
			stats.Bytes += rec.Size
			templates[rec.TemplateID] = struct{}{}
		}
		stats.Templates = len(templates)
		return nil
	})

	return stats, err
}

func paginate(records []*Record, offset, limit int) []*Record {
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
