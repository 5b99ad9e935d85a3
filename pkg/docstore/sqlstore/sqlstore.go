// Package sqlstore persists documents in a single gorm table. Each row is one document keyed by its full path;
// queries load a collection's rows and filter them in Go with docstore.Query.Apply.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/storeadmin/pkg/db"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is the row model.
type Document struct {
	Path       string         `gorm:"primaryKey;type:varchar(512)"`
	Collection string         `gorm:"type:varchar(512);not null;index:idx_documents_collection"`
	DocID      string         `gorm:"column:doc_id;type:varchar(255);not null"`
	Data       datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

func (Document) TableName() string { return "documents" }

type Backend struct {
	db *gorm.DB
}

func NewBackend(conn *gorm.DB) *Backend {
	return &Backend{db: conn}
}

// AutoMigrate creates the documents table for dialects without SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&Document{})
}

func (b *Backend) Get(ctx context.Context, path string) (*docstore.Record, error) {
	return get(b.db.WithContext(ctx), path, false)
}

func (b *Backend) List(ctx context.Context, collection string) ([]*docstore.Record, error) {
	var rows []Document
	if err := b.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("path ASC").
		Find(&rows).Error; err != nil {
		return nil, mapErr(err)
	}
	out := make([]*docstore.Record, 0, len(rows))
	for i := range rows {
		rec, err := toRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *Backend) Commit(ctx context.Context, writes []docstore.Write, now time.Time) error {
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return commit(tx, writes, now)
	})
	return mapErr(err)
}

func (b *Backend) RunInTx(ctx context.Context, fn func(ctx context.Context, tx docstore.BackendTx) error) error {
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &sqlTx{db: tx})
	})
	return mapErr(err)
}

// Close is a no-op; the connection pool belongs to pkg/db.
func (b *Backend) Close() error { return nil }

type sqlTx struct {
	db *gorm.DB
}

func (t *sqlTx) Get(ctx context.Context, path string) (*docstore.Record, error) {
	return get(t.db.WithContext(ctx), path, true)
}

func (t *sqlTx) Commit(ctx context.Context, writes []docstore.Write, now time.Time) error {
	return commit(t.db.WithContext(ctx), writes, now)
}

func get(conn *gorm.DB, path string, forUpdate bool) (*docstore.Record, error) {
	var row Document
	stmt := conn
	if forUpdate && supportsRowLocks(conn) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := stmt.Where("path = ?", path).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return toRecord(&row)
}

// commit applies writes inside an open transaction. Rows are read once and written once per path.
func commit(tx *gorm.DB, writes []docstore.Write, now time.Time) error {
	type state struct {
		rec     *docstore.Record
		existed bool
	}
	staged := make(map[string]*state)
	order := make([]string, 0, len(writes))

	for _, w := range writes {
		path := w.Ref.Path()
		st, ok := staged[path]
		if !ok {
			rec, err := get(tx, path, true)
			if err != nil {
				return err
			}
			st = &state{rec: rec, existed: rec != nil}
			staged[path] = st
			order = append(order, path)
		}
		var body docstore.Data
		if st.rec != nil {
			body = st.rec.Data
		}
		next, err := docstore.ApplyWrite(body, w)
		if err != nil {
			return err
		}
		if next == nil {
			st.rec = nil
			continue
		}
		created := now
		if st.rec != nil {
			created = st.rec.CreateTime
		}
		st.rec = &docstore.Record{Path: path, Data: next, CreateTime: created, UpdateTime: now}
	}

	for _, path := range order {
		st := staged[path]
		switch {
		case st.rec == nil && st.existed:
			if err := tx.Where("path = ?", path).Delete(&Document{}).Error; err != nil {
				return err
			}
		case st.rec == nil:
		case st.existed:
			raw, err := json.Marshal(st.rec.Data)
			if err != nil {
				return err
			}
			if err := tx.Model(&Document{}).Where("path = ?", path).Updates(map[string]any{
				"data":       datatypes.JSON(raw),
				"updated_at": st.rec.UpdateTime,
			}).Error; err != nil {
				return err
			}
		default:
			row, err := fromRecord(st.rec)
			if err != nil {
				return err
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func supportsRowLocks(conn *gorm.DB) bool {
	return conn.Dialector.Name() != "sqlite"
}

func toRecord(row *Document) (*docstore.Record, error) {
	data := docstore.Data{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", row.Path, err)
		}
	}
	return &docstore.Record{
		Path:       row.Path,
		Data:       data,
		CreateTime: row.CreatedAt.UTC(),
		UpdateTime: row.UpdatedAt.UTC(),
	}, nil
}

func fromRecord(rec *docstore.Record) (*Document, error) {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, err
	}
	collection := ""
	if idx := strings.LastIndex(rec.Path, "/"); idx >= 0 {
		collection = rec.Path[:idx]
	}
	return &Document{
		Path:       rec.Path,
		Collection: collection,
		DocID:      rec.Path[strings.LastIndex(rec.Path, "/")+1:],
		Data:       datatypes.JSON(raw),
		CreatedAt:  rec.CreateTime,
		UpdatedAt:  rec.UpdateTime,
	}, nil
}

// mapErr turns lock contention and racing inserts into docstore.ErrAborted so transactions retry.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrAborted) || errors.Is(err, docstore.ErrNotFound) ||
		errors.Is(err, docstore.ErrAlreadyExists) || errors.Is(err, docstore.ErrInvalidReference) {
		return err
	}
	if db.IsDuplicateKeyErr(err) || db.IsContentionErr(err) {
		return fmt.Errorf("%w: %v", docstore.ErrAborted, err)
	}
	if db.IsConnectionErr(err) {
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	return err
}
