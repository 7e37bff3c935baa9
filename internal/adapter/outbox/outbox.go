package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/olyamironova/matching-engine/internal/port"
)

// Stream prefixes. Keys are "<kind>/%020d" so lexical order is sequence
// order.
const (
	KindMarketUpdate = "mu"
	KindExecution    = "pr"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type Record struct {
	Kind        string
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Key         []byte
	Payload     []byte
}

const headerLen = 1 + 4 + 8 + 2

// binary encoding: [state:1][retries:4][lastAttempt:8][keyLen:2][key][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, headerLen+len(r.Key)+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(r.Key)))
	n := copy(buf[headerLen:], r.Key)
	copy(buf[headerLen+n:], r.Payload)
	return buf
}

func decodeRecord(kind string, seq uint64, b []byte) (Record, error) {
	if len(b) < headerLen {
		return Record{}, errors.New("outbox: short record")
	}
	keyLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < headerLen+keyLen {
		return Record{}, errors.New("outbox: truncated key")
	}
	rec := Record{
		Kind:        kind,
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[headerLen+keyLen:]...),
	}
	if keyLen > 0 {
		rec.Key = append([]byte(nil), b[headerLen:headerLen+keyLen]...)
	}
	return rec, nil
}

type Outbox struct {
	db *pebble.DB
}

var _ port.Outbox = (*Outbox)(nil)

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("outbox: open %s: %w", dir, err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put stores a new event under its stream sequence and raises the stream's
// high-water mark in the same batch. key becomes the published message key
// and must be shorter than 64KiB. Writes are not synced individually;
// pebble's WAL still orders them.
func (o *Outbox) Put(kind string, seq uint64, key, payload []byte) error {
	if len(key) > 0xffff {
		return fmt.Errorf("outbox: key too long (%d bytes)", len(key))
	}
	hw, err := o.highWater(kind)
	if err != nil {
		return err
	}

	b := o.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyFor(kind, seq), encodeRecord(Record{State: StateNew, Key: key, Payload: payload}), nil); err != nil {
		return err
	}
	if seq > hw {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], seq)
		if err := b.Set(highWaterKey(kind), v[:], nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.NoSync)
}

func (o *Outbox) highWater(kind string) (uint64, error) {
	val, closer, err := o.db.Get(highWaterKey(kind))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("outbox: malformed high-water mark for %s", kind)
	}
	return binary.BigEndian.Uint64(val), nil
}

func (o *Outbox) Get(kind string, seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(kind, seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(kind, seq, val)
}

// UpdateState rewrites the record header after a send attempt.
func (o *Outbox) UpdateState(rec Record, state State, retries uint32) error {
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(rec.Kind, rec.Seq), encodeRecord(rec), pebble.Sync)
}

func (o *Outbox) MarkSent(rec Record) error {
	return o.UpdateState(rec, StateSent, rec.Retries)
}

func (o *Outbox) MarkFailed(rec Record) error {
	return o.UpdateState(rec, StateFailed, rec.Retries+1)
}

// Ack removes a published record. The stream's high-water mark keeps its
// sequence.
func (o *Outbox) Ack(rec Record) error {
	return o.db.Delete(keyFor(rec.Kind, rec.Seq), pebble.Sync)
}

// ScanPending visits up to limit unacknowledged records of kind in sequence
// order. A record left SENT by a crash is treated as pending.
func (o *Outbox) ScanPending(kind string, limit int, fn func(Record) error) error {
	lower, upper := bounds(kind)
	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid() && (limit <= 0 || n < limit); iter.Next() {
		seq, err := parseKey(kind, iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(kind, seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}
		n++
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastSeq returns the highest sequence ever put for kind, acknowledged or
// not, or 0.
func (o *Outbox) LastSeq(kind string) (uint64, error) {
	hw, err := o.highWater(kind)
	if err != nil {
		return 0, err
	}
	lower, upper := bounds(kind)
	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return hw, iter.Error()
	}
	last, err := parseKey(kind, iter.Key())
	if err != nil {
		return 0, err
	}
	return max(hw, last), nil
}

func keyFor(kind string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", kind, seq))
}

// highWaterKey sorts outside every "<kind>/" range.
func highWaterKey(kind string) []byte {
	return []byte("hw:" + kind)
}

func bounds(kind string) ([]byte, []byte) {
	return []byte(kind + "/"), []byte(kind + "/~")
}

func parseKey(kind string, b []byte) (uint64, error) {
	prefix := len(kind) + 1
	if len(b) <= prefix {
		return 0, fmt.Errorf("outbox: malformed key %q", b)
	}
	return strconv.ParseUint(string(b[prefix:]), 10, 64)
}
