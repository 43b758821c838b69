// Package recorder writes the telemetry frames of every run into a BoltDB file so runs can
// be inspected after the fact. Navigation never reads it back.
package recorder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/util"
)

var runsBucket = []byte("runs")

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunInfo describes one recorded run.
type RunInfo struct {
	ID      string    `json:"id"`
	Mode    string    `json:"mode"`
	Format  string    `json:"format"`
	Started time.Time `json:"started"`
}

// Recorder stores frames in one bucket per run, keyed by sequence number.
type Recorder struct {
	db  *bbolt.DB
	enc parser.TelemetryEncoder
}

// Open creates or opens the database at path.
func Open(path string, enc parser.TelemetryEncoder) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("[recorder] create %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[recorder] open BoltDB: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[recorder] init: %w", err)
	}
	return &Recorder{db: db, enc: enc}, nil
}

func runBucket(id string) []byte {
	return []byte("run:" + id)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// Record appends one frame. The first frame of a run registers it.
func (r *Recorder) Record(f model.Frame) error {
	if f.RunID == "" {
		return errors.New("[recorder] frame without run id")
	}
	data, err := r.enc.Encode(f)
	if err != nil {
		return fmt.Errorf("[recorder] encode: %w", err)
	}
	return r.db.Batch(func(tx *bbolt.Tx) error {
		runs := tx.Bucket(runsBucket)
		if runs.Get([]byte(f.RunID)) == nil {
			info, err := json.Marshal(RunInfo{ID: f.RunID, Mode: f.Mode, Format: r.enc.Name(), Started: f.Time})
			if err != nil {
				return err
			}
			if err := runs.Put([]byte(f.RunID), info); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucketIfNotExists(runBucket(f.RunID))
		if err != nil {
			return err
		}
		return b.Put(seqKey(f.Seq), data)
	})
}

// Run records frames from ch until ctx ends or ch is closed.
func (r *Recorder) Run(ctx context.Context, ch <-chan model.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Record(f); err != nil {
				util.Warn("%v", err)
			}
		}
	}
}

// Runs lists the recorded runs, oldest first.
func (r *Recorder) Runs() ([]RunInfo, error) {
	var out []RunInfo
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(_, v []byte) error {
			var info RunInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			out = append(out, info)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("[recorder] list runs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out, nil
}

// Count returns the number of frames recorded for a run.
func (r *Recorder) Count(id string) (int, error) {
	n := 0
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runBucket(id))
		if b == nil {
			return ErrRunNotFound
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Last returns the most recent frame of a run.
func (r *Recorder) Last(id string) (model.Frame, error) {
	var raw []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runBucket(id))
		if b == nil {
			return ErrRunNotFound
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return ErrRunNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return model.Frame{}, err
	}
	return r.enc.Decode(raw)
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
