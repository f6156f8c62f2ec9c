package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// Archiver serializes simulation history to JSONL and uploads it to object
// storage. Deleting the archived rows from the primary store is a separate,
// explicit step executed only after the archive upload succeeded.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
}

// NewArchiver creates an Archiver writing under the given key prefix, e.g.
// "simulations".
func NewArchiver(writer domain.BlobWriter, prefix string) *Archiver {
	if prefix == "" {
		prefix = "simulations"
	}
	return &Archiver{writer: writer, prefix: prefix}
}

// ArchiveSimulations uploads the records as one JSONL object and returns the
// object key. An empty batch is a no-op and returns an empty key.
func (a *Archiver) ArchiveSimulations(ctx context.Context, recs []domain.SimulationRecord, cutoff time.Time) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return "", fmt.Errorf("s3blob: encode simulation %s: %w", rec.ID, err)
		}
	}

	key := fmt.Sprintf("%s/%s/simulations-%s.jsonl",
		a.prefix,
		cutoff.UTC().Format("2006/01"),
		time.Now().UTC().Format("20060102T150405Z"),
	)

	if err := a.writer.Write(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return "", err
	}
	return key, nil
}
