package localdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/parsec-core/pkg/types"
)

// Bucket layout, directly adapted from the teacher's one-bucket-per-
// entity scheme in pkg/storage/boltdb.go: certificates live in a
// single global log bucket keyed by big-endian index (spec's index
// continuity rule reads naturally as one monotonic ordinal across the
// whole stream, not one per topic), manifests live in a second
// bucket keyed by entry id.
var (
	bucketCertLog   = []byte("cert_log")
	bucketManifests = []byte("manifests")
)

// certRecord is the on-disk envelope stored per log entry: indexing
// metadata in the clear, payload still encrypted. Mirrors the
// teacher's json.Marshal-into-bucket idiom in pkg/storage/boltdb.go.
type certRecord struct {
	Index     types.IndexInt
	TopicKind types.TopicKind
	TopicRealm types.RealmID
	Kind      types.CertificateKind
	Author    types.CertificateAuthor
	DeviceID  *types.DeviceID
	UserID    *types.UserID
	Timestamp types.DateTime
	Blob      []byte
}

// BoltStore implements Store (and Transactor) on top of a single
// bbolt file, the same way the teacher's BoltStore wraps warren.db.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt file under dataDir
// and ensures both bucket families exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "parsec-core.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening local database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCertLog, bucketManifests} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func indexKey(index types.IndexInt) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}

func entryKey(id types.EntryID) []byte {
	return id[:]
}

func (s *BoltStore) AddCertificate(index types.IndexInt, topic types.Topic, timestamp types.DateTime, meta CertificateMeta, encryptedBlob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return addCertificateTx(tx, index, topic, timestamp, meta, encryptedBlob)
	})
}

func addCertificateTx(tx *bolt.Tx, index types.IndexInt, topic types.Topic, timestamp types.DateTime, meta CertificateMeta, encryptedBlob []byte) error {
	b := tx.Bucket(bucketCertLog)
	rec := certRecord{
		Index:      index,
		TopicKind:  topic.Kind,
		TopicRealm: topic.Realm,
		Kind:       meta.Kind,
		Author:     meta.Author,
		DeviceID:   meta.DeviceID,
		UserID:     meta.UserID,
		Timestamp:  timestamp,
		Blob:       encryptedBlob,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding certificate record: %w", err)
	}
	return b.Put(indexKey(index), data)
}

// matchesTopic reports whether rec belongs to query's topic.
func matchesTopic(rec certRecord, topic types.Topic) bool {
	if rec.TopicKind != topic.Kind {
		return false
	}
	if topic.Kind == types.TopicRealm && rec.TopicRealm != topic.Realm {
		return false
	}
	return true
}

// matchesSelector reports whether rec satisfies query's narrowing
// selector field (index/device/user), independent of the upTo bound.
func matchesSelector(rec certRecord, query CertificateQuery) bool {
	if query.Index != nil {
		return rec.Index == *query.Index
	}
	if query.DeviceID != nil {
		return rec.DeviceID != nil && *rec.DeviceID == *query.DeviceID
	}
	if query.UserID != nil {
		return rec.UserID != nil && *rec.UserID == *query.UserID
	}
	return true
}

func (s *BoltStore) scanLog(tx *bolt.Tx, fn func(certRecord) (stop bool, err error)) error {
	b := tx.Bucket(bucketCertLog)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec certRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decoding certificate record: %w", err)
		}
		stop, err := fn(rec)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (s *BoltStore) GetCertificateEncrypted(query CertificateQuery, upTo UpTo) (types.DateTime, []byte, error) {
	var (
		found        certRecord
		ok           bool
		tooRecentRec certRecord
		haveTooRecent bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		return s.scanLog(tx, func(rec certRecord) (bool, error) {
			if !matchesTopic(rec, query.Topic) || !matchesSelector(rec, query) {
				return false, nil
			}
			if upTo.Index != nil && rec.Index > *upTo.Index {
				if !haveTooRecent || rec.Index < tooRecentRec.Index {
					tooRecentRec = rec
					haveTooRecent = true
				}
				return false, nil
			}
			if !ok || rec.Index > found.Index {
				found = rec
				ok = true
			}
			return false, nil
		})
	})
	if err != nil {
		return types.DateTime{}, nil, fmt.Errorf("scanning certificate log: %w", err)
	}
	if ok {
		return found.Timestamp, found.Blob, nil
	}
	if haveTooRecent {
		return types.DateTime{}, nil, &ErrTooRecent{CertificateTimestamp: tooRecentRec.Timestamp}
	}
	return types.DateTime{}, nil, ErrNonExisting
}

func (s *BoltStore) GetMultipleCertificatesEncrypted(query CertificateQuery, upTo UpTo, offset, limit *int) ([]EncryptedCertificate, error) {
	var matches []EncryptedCertificate
	err := s.db.View(func(tx *bolt.Tx) error {
		return s.scanLog(tx, func(rec certRecord) (bool, error) {
			if !matchesTopic(rec, query.Topic) || !matchesSelector(rec, query) {
				return false, nil
			}
			if upTo.Index != nil && rec.Index > *upTo.Index {
				return false, nil
			}
			matches = append(matches, EncryptedCertificate{Index: rec.Index, Timestamp: rec.Timestamp, Blob: rec.Blob})
			return false, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning certificate log: %w", err)
	}

	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start > len(matches) {
		start = len(matches)
	}
	matches = matches[start:]
	if limit != nil && *limit >= 0 && *limit < len(matches) {
		matches = matches[:*limit]
	}
	return matches, nil
}

func (s *BoltStore) GetLastTimestamps() (types.PerTopicLastTimestamps, error) {
	last := types.NewPerTopicLastTimestamps()
	err := s.db.View(func(tx *bolt.Tx) error {
		return s.scanLog(tx, func(rec certRecord) (bool, error) {
			switch rec.TopicKind {
			case types.TopicCommon:
				updateLatest(&last.Common, rec.Timestamp)
			case types.TopicSequester:
				updateLatest(&last.Sequester, rec.Timestamp)
			case types.TopicShamirRecovery:
				updateLatest(&last.ShamirRecovery, rec.Timestamp)
			case types.TopicRealm:
				cur, ok := last.Realm[rec.TopicRealm]
				if !ok || rec.Timestamp.After(cur) {
					last.Realm[rec.TopicRealm] = rec.Timestamp
				}
			}
			return false, nil
		})
	})
	if err != nil {
		return types.PerTopicLastTimestamps{}, fmt.Errorf("scanning certificate log: %w", err)
	}
	return last, nil
}

func updateLatest(slot **types.DateTime, candidate types.DateTime) {
	if *slot == nil || candidate.After(**slot) {
		v := candidate
		*slot = &v
	}
}

func recordToLogEntry(rec certRecord) LogEntry {
	return LogEntry{
		Index:     rec.Index,
		Topic:     types.Topic{Kind: rec.TopicKind, Realm: rec.TopicRealm},
		Timestamp: rec.Timestamp,
		Meta: CertificateMeta{
			Kind:     rec.Kind,
			Author:   rec.Author,
			DeviceID: rec.DeviceID,
			UserID:   rec.UserID,
		},
		Blob: rec.Blob,
	}
}

func (s *BoltStore) GetAllCertificatesEncrypted(upTo UpTo) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return s.scanLog(tx, func(rec certRecord) (bool, error) {
			if upTo.Index != nil && rec.Index > *upTo.Index {
				return false, nil
			}
			entries = append(entries, recordToLogEntry(rec))
			return false, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scanning certificate log: %w", err)
	}
	return entries, nil
}

func (s *BoltStore) LastIndex() (types.IndexInt, error) {
	var last types.IndexInt
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCertLog).Cursor()
		k, _ := c.Last()
		if k == nil {
			return nil
		}
		last = types.IndexInt(binary.BigEndian.Uint64(k))
		return nil
	})
	return last, err
}

func (s *BoltStore) ForgetAllCertificates() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketCertLog); err != nil {
			return fmt.Errorf("clearing certificate log: %w", err)
		}
		_, err := tx.CreateBucket(bucketCertLog)
		return err
	})
}

func (s *BoltStore) GetManifestEncrypted(id types.EntryID) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		data := b.Get(entryKey(id))
		if data == nil {
			return ErrNonExisting
		}
		blob = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *BoltStore) PutManifestEncrypted(id types.EntryID, encryptedBlob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		return b.Put(entryKey(id), encryptedBlob)
	})
}

// BeginWrite opens a writable bbolt transaction and wraps it as a
// Transaction, giving callers explicit Commit()/Rollback() the way
// spec §6.1's "for_update(&Storage) -> Transaction" does.
func (s *BoltStore) BeginWrite() (Transaction, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("beginning write transaction: %w", err)
	}
	return &boltTx{tx: tx}, nil
}

// boltTx adapts a live *bolt.Tx to the Transaction interface. Every
// Store method below runs directly against tx rather than opening a
// nested db.Update/View, since bbolt only allows one writable
// transaction at a time per process.
type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) Commit() error   { return t.tx.Commit() }
func (t *boltTx) Rollback() error { return t.tx.Rollback() }

func (t *boltTx) Close() error {
	return fmt.Errorf("Close is not valid on a transaction; call Commit or Rollback")
}

func (t *boltTx) AddCertificate(index types.IndexInt, topic types.Topic, timestamp types.DateTime, meta CertificateMeta, encryptedBlob []byte) error {
	return addCertificateTx(t.tx, index, topic, timestamp, meta, encryptedBlob)
}

func (t *boltTx) GetCertificateEncrypted(query CertificateQuery, upTo UpTo) (types.DateTime, []byte, error) {
	var (
		found         certRecord
		ok            bool
		tooRecentRec  certRecord
		haveTooRecent bool
	)
	b := t.tx.Bucket(bucketCertLog)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec certRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return types.DateTime{}, nil, fmt.Errorf("decoding certificate record: %w", err)
		}
		if !matchesTopic(rec, query.Topic) || !matchesSelector(rec, query) {
			continue
		}
		if upTo.Index != nil && rec.Index > *upTo.Index {
			if !haveTooRecent || rec.Index < tooRecentRec.Index {
				tooRecentRec = rec
				haveTooRecent = true
			}
			continue
		}
		if !ok || rec.Index > found.Index {
			found = rec
			ok = true
		}
	}
	if ok {
		return found.Timestamp, found.Blob, nil
	}
	if haveTooRecent {
		return types.DateTime{}, nil, &ErrTooRecent{CertificateTimestamp: tooRecentRec.Timestamp}
	}
	return types.DateTime{}, nil, ErrNonExisting
}

func (t *boltTx) GetMultipleCertificatesEncrypted(query CertificateQuery, upTo UpTo, offset, limit *int) ([]EncryptedCertificate, error) {
	var matches []EncryptedCertificate
	b := t.tx.Bucket(bucketCertLog)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec certRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("decoding certificate record: %w", err)
		}
		if !matchesTopic(rec, query.Topic) || !matchesSelector(rec, query) {
			continue
		}
		if upTo.Index != nil && rec.Index > *upTo.Index {
			continue
		}
		matches = append(matches, EncryptedCertificate{Index: rec.Index, Timestamp: rec.Timestamp, Blob: rec.Blob})
	}
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start > len(matches) {
		start = len(matches)
	}
	matches = matches[start:]
	if limit != nil && *limit >= 0 && *limit < len(matches) {
		matches = matches[:*limit]
	}
	return matches, nil
}

func (t *boltTx) GetLastTimestamps() (types.PerTopicLastTimestamps, error) {
	last := types.NewPerTopicLastTimestamps()
	b := t.tx.Bucket(bucketCertLog)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec certRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return types.PerTopicLastTimestamps{}, fmt.Errorf("decoding certificate record: %w", err)
		}
		switch rec.TopicKind {
		case types.TopicCommon:
			updateLatest(&last.Common, rec.Timestamp)
		case types.TopicSequester:
			updateLatest(&last.Sequester, rec.Timestamp)
		case types.TopicShamirRecovery:
			updateLatest(&last.ShamirRecovery, rec.Timestamp)
		case types.TopicRealm:
			cur, ok := last.Realm[rec.TopicRealm]
			if !ok || rec.Timestamp.After(cur) {
				last.Realm[rec.TopicRealm] = rec.Timestamp
			}
		}
	}
	return last, nil
}

func (t *boltTx) GetAllCertificatesEncrypted(upTo UpTo) ([]LogEntry, error) {
	var entries []LogEntry
	b := t.tx.Bucket(bucketCertLog)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var rec certRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("decoding certificate record: %w", err)
		}
		if upTo.Index != nil && rec.Index > *upTo.Index {
			continue
		}
		entries = append(entries, recordToLogEntry(rec))
	}
	return entries, nil
}

func (t *boltTx) LastIndex() (types.IndexInt, error) {
	c := t.tx.Bucket(bucketCertLog).Cursor()
	k, _ := c.Last()
	if k == nil {
		return 0, nil
	}
	return types.IndexInt(binary.BigEndian.Uint64(k)), nil
}

func (t *boltTx) ForgetAllCertificates() error {
	if err := t.tx.DeleteBucket(bucketCertLog); err != nil {
		return fmt.Errorf("clearing certificate log: %w", err)
	}
	_, err := t.tx.CreateBucket(bucketCertLog)
	return err
}

func (t *boltTx) GetManifestEncrypted(id types.EntryID) ([]byte, error) {
	b := t.tx.Bucket(bucketManifests)
	data := b.Get(entryKey(id))
	if data == nil {
		return nil, ErrNonExisting
	}
	return append([]byte(nil), data...), nil
}

func (t *boltTx) PutManifestEncrypted(id types.EntryID, encryptedBlob []byte) error {
	b := t.tx.Bucket(bucketManifests)
	return b.Put(entryKey(id), encryptedBlob)
}
