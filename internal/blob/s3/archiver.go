package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

const (
	archiveRoot    = "orders"
	jsonlType      = "application/x-ndjson"
	multipartAbove = 8 * 1024 * 1024
)

// archiveRecord is one JSONL line of an order archive.
type archiveRecord struct {
	Reason     string       `json:"reason"`
	ArchivedAt time.Time    `json:"archived_at"`
	Order      domain.Order `json:"order"`
}

// Archiver implements domain.OrderArchiver. Every call writes one JSONL
// object; archives are never rewritten.
//
//	orders/expired/2026/03/01/1772366400000000000.jsonl
//	orders/filled/2026/03/01/1772366400000000001.jsonl
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveOrders uploads orders under reason and returns the object path.
// An empty batch writes nothing and returns "".
func (a *Archiver) ArchiveOrders(ctx context.Context, reason string, orders []domain.Order) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	at := a.now()

	records := make([]archiveRecord, len(orders))
	for i, o := range orders {
		records[i] = archiveRecord{Reason: reason, ArchivedAt: at, Order: o}
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s orders: %w", reason, err)
	}

	p, err := a.freePath(ctx, reason, at)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s orders: %w", reason, err)
	}
	if len(buf) > multipartAbove {
		err = a.writer.PutMultipart(ctx, p, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, p, bytes.NewReader(buf), jsonlType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s orders: %w", reason, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.orders", map[string]any{
			"path":   p,
			"reason": reason,
			"count":  len(orders),
		}); err != nil {
			return p, fmt.Errorf("s3blob: archive %s orders audit log: %w", reason, err)
		}
	}
	return p, nil
}

// freePath returns the archive path for at, stepping forward a nanosecond
// while an object already exists there.
func (a *Archiver) freePath(ctx context.Context, reason string, at time.Time) (string, error) {
	for range 8 {
		p := archivePath(reason, at)
		exists, err := a.reader.Exists(ctx, p)
		if err != nil {
			return "", err
		}
		if !exists {
			return p, nil
		}
		at = at.Add(time.Nanosecond)
	}
	return "", fmt.Errorf("no free archive path near %s", at.Format(time.RFC3339Nano))
}

// ReadArchive downloads one archive object and decodes its orders.
func (a *Archiver) ReadArchive(ctx context.Context, p string) ([]domain.Order, error) {
	if path.Clean(p) != p || !strings.HasPrefix(p, archiveRoot+"/") {
		return nil, fmt.Errorf("s3blob: read archive %s: %w", p, domain.ErrNotFound)
	}
	rc, err := a.reader.Get(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read archive %s: %w", p, err)
	}
	defer rc.Close()

	var orders []domain.Order
	dec := json.NewDecoder(rc)
	for dec.More() {
		var rec archiveRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("s3blob: decode archive %s line %d: %w", p, len(orders)+1, err)
		}
		orders = append(orders, rec.Order)
	}
	return orders, nil
}

// ListArchives lists the archive objects written for reason.
func (a *Archiver) ListArchives(ctx context.Context, reason string) ([]domain.BlobInfo, error) {
	return a.reader.List(ctx, path.Join(archiveRoot, reason)+"/")
}

// archivePath partitions archives by reason and UTC day. The nanosecond
// suffix keeps paths unique for a single writer.
func archivePath(reason string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%s/%s/%d.jsonl", archiveRoot, reason, at.Format("2006/01/02"), at.UnixNano())
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.OrderArchiver = (*Archiver)(nil)
