package outbox

import (
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func collect(t *testing.T, o *Outbox, kind string, limit int) []Record {
	t.Helper()
	var out []Record
	require.NoError(t, o.ScanPending(kind, limit, func(r Record) error {
		out = append(out, r)
		return nil
	}))
	return out
}

func TestOutboxScanInSequenceOrder(t *testing.T) {
	o := openTest(t)
	for _, seq := range []uint64{10, 2, 9, 1} {
		require.NoError(t, o.Put(KindMarketUpdate, seq, []byte("BTC-USD"), []byte{byte(seq)}))
	}
	require.NoError(t, o.Put(KindExecution, 5, nil, []byte("pr")))

	recs := collect(t, o, KindMarketUpdate, 0)
	require.Len(t, recs, 4)
	var seqs []uint64
	for _, r := range recs {
		seqs = append(seqs, r.Seq)
		assert.Equal(t, StateNew, r.State)
		assert.Equal(t, []byte{byte(r.Seq)}, r.Payload)
		assert.Equal(t, []byte("BTC-USD"), r.Key)
	}
	assert.Equal(t, []uint64{1, 2, 9, 10}, seqs)

	assert.Len(t, collect(t, o, KindMarketUpdate, 2), 2)
	assert.Len(t, collect(t, o, KindExecution, 0), 1)
}

func TestOutboxStateTransitions(t *testing.T) {
	o := openTest(t)
	require.NoError(t, o.Put(KindExecution, 1, []byte("7"), []byte("report")))

	rec, err := o.Get(KindExecution, 1)
	require.NoError(t, err)
	require.NoError(t, o.MarkSent(rec))
	rec, _ = o.Get(KindExecution, 1)
	assert.Equal(t, StateSent, rec.State)
	assert.NotZero(t, rec.LastAttempt)

	require.NoError(t, o.MarkFailed(rec))
	rec, _ = o.Get(KindExecution, 1)
	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, uint32(1), rec.Retries)
	assert.Equal(t, []byte("report"), rec.Payload)
	assert.Equal(t, []byte("7"), rec.Key)
	assert.Len(t, collect(t, o, KindExecution, 0), 1)

	require.NoError(t, o.Ack(rec))
	_, err = o.Get(KindExecution, 1)
	assert.True(t, errors.Is(err, pebble.ErrNotFound))
	assert.Empty(t, collect(t, o, KindExecution, 0))
}

func TestOutboxLastSeq(t *testing.T) {
	o := openTest(t)
	last, err := o.LastSeq(KindMarketUpdate)
	require.NoError(t, err)
	assert.Zero(t, last)

	require.NoError(t, o.Put(KindMarketUpdate, 3, nil, nil))
	require.NoError(t, o.Put(KindMarketUpdate, 12, nil, nil))
	require.NoError(t, o.Put(KindExecution, 40, nil, nil))

	last, err = o.LastSeq(KindMarketUpdate)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), last)
}

func TestOutboxLastSeqSurvivesDrain(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, o.Put(KindMarketUpdate, seq, []byte("BTC-USD"), nil))
	}
	require.NoError(t, o.ScanPending(KindMarketUpdate, 0, o.Ack))
	assert.Empty(t, collect(t, o, KindMarketUpdate, 0))

	last, err := o.LastSeq(KindMarketUpdate)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	last, err = o.LastSeq(KindExecution)
	require.NoError(t, err)
	assert.Zero(t, last)

	require.NoError(t, o.Close())
	o, err = Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })

	last, err = o.LastSeq(KindMarketUpdate)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	// A lower sequence never lowers the mark.
	require.NoError(t, o.Put(KindMarketUpdate, 2, nil, nil))
	last, err = o.LastSeq(KindMarketUpdate)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)
}

func TestDecodeRejectsShortRecord(t *testing.T) {
	_, err := decodeRecord(KindExecution, 1, []byte{1, 2})
	assert.Error(t, err)
	bad := encodeRecord(Record{Key: []byte("abc")})
	_, err = decodeRecord(KindExecution, 1, bad[:headerLen+1])
	assert.Error(t, err)
	assert.Error(t, openTest(t).Put(KindExecution, 1, make([]byte, 70000), nil))
	assert.Equal(t, "ACKED", StateAcked.String())
}
