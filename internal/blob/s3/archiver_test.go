package s3blob

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

type captureWriter struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (w *captureWriter) Write(_ context.Context, key string, data []byte, contentType string) error {
	if w.err != nil {
		return w.err
	}
	w.key = key
	w.contentType = contentType
	w.data = data
	return nil
}

func TestArchiveSimulationsWritesJSONL(t *testing.T) {
	writer := &captureWriter{}
	archiver := NewArchiver(writer, "history")

	cutoff := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	recs := []domain.SimulationRecord{
		{ID: "sim-1", Wallet: "0xA1", Direction: "deposit"},
		{ID: "sim-2", Wallet: "0xA2", Direction: "withdraw"},
	}

	key, err := archiver.ArchiveSimulations(context.Background(), recs, cutoff)
	require.NoError(t, err)

	assert.Equal(t, key, writer.key)
	assert.True(t, strings.HasPrefix(key, "history/2026/03/simulations-"), key)
	assert.True(t, strings.HasSuffix(key, ".jsonl"), key)
	assert.Equal(t, "application/x-ndjson", writer.contentType)

	lines := strings.Split(strings.TrimSpace(string(writer.data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"sim-1"`)
	assert.Contains(t, lines[1], `"sim-2"`)
}

func TestArchiveSimulationsEmptyBatch(t *testing.T) {
	writer := &captureWriter{}
	archiver := NewArchiver(writer, "history")

	key, err := archiver.ArchiveSimulations(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, writer.key)
}

func TestArchiveSimulationsPropagatesWriteError(t *testing.T) {
	archiver := NewArchiver(&captureWriter{err: assert.AnError}, "")

	_, err := archiver.ArchiveSimulations(context.Background(), []domain.SimulationRecord{{ID: "sim-1"}}, time.Now())
	require.ErrorIs(t, err, assert.AnError)
}

func TestDefaultPrefix(t *testing.T) {
	writer := &captureWriter{}
	archiver := NewArchiver(writer, "")

	key, err := archiver.ArchiveSimulations(context.Background(), []domain.SimulationRecord{{ID: "sim-1"}}, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "simulations/"), key)
}
