// Package journal keeps a log of what happened during a simulation run, queryable while it runs.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
)

// Memory is the path for a journal that is never written to disk.
const Memory = ":memory:"

const kindIndex = "kind"

type Kind string

const (
	KindStep   Kind = "step"
	KindSwitch Kind = "switch"
)

// Record is one entry of the journal.
type Record struct {
	Run  uuid.UUID `json:"run"`
	Seq  int       `json:"seq"`
	Time time.Time `json:"time"`
	Kind Kind      `json:"kind"`
	// Step is the number of steps taken when this was recorded.
	Step    int     `json:"step"`
	Elapsed float64 `json:"elapsed"`
	// Dt is set for KindStep.
	Dt float64 `json:"dt,omitempty"`
	// Switch and State are set for KindSwitch.
	Switch string `json:"switch,omitempty"`
	State  bool   `json:"state"`
	// Errors are the conflicts reported, if any.
	Errors []string `json:"errors,omitempty"`
}

type Journal struct {
	db   *buntdb.DB
	run  uuid.UUID
	lock sync.Mutex
	seq  int
}

// Open opens a journal at path (use Memory to keep it in memory) for the run identified by run.
func Open(path string, run uuid.UUID) (*Journal, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if path != Memory {
		err = db.SetConfig(buntdb.Config{
			SyncPolicy:           buntdb.EverySecond,
			AutoShrinkPercentage: 100,
			AutoShrinkMinSize:    32 * 1024 * 1024,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	err = db.CreateIndex(kindIndex, "record:*", buntdb.IndexJSON("kind"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}
	j := &Journal{db: db, run: run}
	err = db.View(func(tx *buntdb.Tx) error {
		n, err := tx.Len()
		j.seq = n
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Run() uuid.UUID { return j.run }

func key(seq int) string {
	return fmt.Sprintf("record:%08d", seq)
}

// Record stamps r with the run, a sequence number, and (if unset) the current time, and stores it.
func (j *Journal) Record(r Record) (Record, error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	r.Run = j.run
	r.Seq = j.seq
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return Record{}, err
	}
	err = j.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key(r.Seq), string(data), nil)
		return err
	})
	if err != nil {
		return Record{}, fmt.Errorf("record %d: %w", r.Seq, err)
	}
	j.seq++
	return r, nil
}

// Latest returns up to n records, newest first.
func (j *Journal) Latest(n int) ([]Record, error) {
	return j.collect(n, func(tx *buntdb.Tx, iter func(key, value string) bool) error {
		return tx.Descend("", iter)
	})
}

// LatestKind is like Latest, but only returns records of kind.
func (j *Journal) LatestKind(kind Kind, n int) ([]Record, error) {
	pivot, err := json.Marshal(map[string]Kind{"kind": kind})
	if err != nil {
		return nil, err
	}
	return j.collect(n, func(tx *buntdb.Tx, iter func(key, value string) bool) error {
		return tx.DescendEqual(kindIndex, string(pivot), iter)
	})
}

func (j *Journal) collect(n int, walk func(tx *buntdb.Tx, iter func(key, value string) bool) error) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	var rs []Record
	var err2 error
	err := j.db.View(func(tx *buntdb.Tx) error {
		return walk(tx, func(key, value string) bool {
			var r Record
			err2 = json.Unmarshal([]byte(value), &r)
			if err2 != nil {
				err2 = fmt.Errorf("%s: %w", key, err2)
				return false
			}
			rs = append(rs, r)
			return len(rs) < n
		})
	})
	if err != nil {
		return nil, err
	}
	return rs, err2
}

// Len returns the number of records.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	return n, err
}

func (j *Journal) Close() error {
	return j.db.Close()
}
