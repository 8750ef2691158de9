package reports

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketReports = []byte("reports")

// BoltStore keeps unsent reports in a bbolt file so they survive a restart
// of the scheduler process.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "creating directory of report store %s", path)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening report store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReports)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating reports bucket")
	}
	return &BoltStore{db: db}, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (s *BoltStore) Append(r Report) (Report, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReports)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.Seq = seq
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return r, errors.Wrapf(err, "storing report for %s", r.Key())
	}
	return r, nil
}

// Pending relies on big-endian keys sorting in sequence order.
func (s *BoltStore) Pending() ([]Report, error) {
	var out []Report
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(k, v []byte) error {
			var r Report
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.Wrapf(err, "decoding report %d", binary.BigEndian.Uint64(k))
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Ack(seq uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).Delete(seqKey(seq))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
