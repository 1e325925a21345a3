package certstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cuemby/parsec-core/pkg/certvalidator"
	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/events"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/metrics"
	"github.com/cuemby/parsec-core/pkg/serverclient"
	"github.com/cuemby/parsec-core/pkg/types"
)

const deviceKeyCacheSize = 256

// Outcome reports whether an ingested batch was applied in place or
// forced a redacted-flavor switch (spec §4.3).
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeSwitched
)

func (o Outcome) String() string {
	if o == OutcomeSwitched {
		return "Switched"
	}
	return "Applied"
}

// Store is the CertStore component (spec §4.1): topology_lock (fair
// rwlock) + storage_lock (exclusive mutex over the storage handle) +
// cache_lock (exclusive mutex over the in-memory aggregate).
type Store struct {
	topology *fairRWMutex

	storageMu  sync.Mutex
	storage    localdb.Store
	transactor localdb.Transactor
	stopped    bool

	deviceKey    types.SymmetricKey
	rootKey      types.VerifyKey
	localUserID  types.UserID

	cacheMu sync.Mutex
	cache   *aggregateState

	hotKeys *lru.Cache[types.DeviceID, types.VerifyKey]

	client serverclient.Client
	bus    *events.Broker
}

// Config bundles Store's construction-time dependencies.
type Config struct {
	Storage     localdb.Store
	Transactor  localdb.Transactor
	Client      serverclient.Client
	Bus         *events.Broker
	DeviceKey   types.SymmetricKey
	RootKey     types.VerifyKey
	LocalUserID types.UserID
}

// New constructs a Store. The hot DeviceID->VerifyKey cache is
// advisory only (spec §4's "bounded secondary cache" note): a miss
// always falls back to the authoritative aggregate, so bounding it
// cannot make validation answer incorrectly, only slower.
func New(cfg Config) (*Store, error) {
	hotKeys, err := lru.New[types.DeviceID, types.VerifyKey](deviceKeyCacheSize)
	if err != nil {
		return nil, coreerrors.Internal("creating device verify-key cache", err)
	}
	return &Store{
		topology:    newFairRWMutex(),
		storage:     cfg.Storage,
		transactor:  cfg.Transactor,
		deviceKey:   cfg.DeviceKey,
		rootKey:     cfg.RootKey,
		localUserID: cfg.LocalUserID,
		hotKeys:     hotKeys,
		client:      cfg.Client,
		bus:         cfg.Bus,
	}, nil
}

// Stats reports the snapshot metrics.Collector polls: currently this is
// just the hot device verify-key cache's occupancy, since the
// authoritative aggregate (cache field) has no size bound worth
// exposing as a gauge.
func (s *Store) Stats() metrics.CertStoreStats {
	return metrics.CertStoreStats{CachedDevices: s.hotKeys.Len()}
}

// Stop transitions the storage handle Running -> Stopped. Every
// subsequent ForRead/ForWrite call returns coreerrors.Stopped.
func (s *Store) Stop() error {
	s.storageMu.Lock()
	defer s.storageMu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	return s.storage.Close()
}

// ForRead acquires topology_lock shared and storage_lock, then runs fn
// with a ReadGuard. It never mutates storage.
func (s *Store) ForRead(fn func(*ReadGuard) error) error {
	s.topology.RLock()
	defer s.topology.RUnlock()

	s.storageMu.Lock()
	defer s.storageMu.Unlock()
	if s.stopped {
		return coreerrors.Stopped
	}

	return fn(&ReadGuard{store: s})
}

// ForWrite acquires topology_lock exclusive and storage_lock, opens a
// storage transaction, and runs fn with a WriteGuard seeded from the
// current committed state. The transaction commits iff fn returns a
// nil error; regardless of outcome, the persistent cache is cleared
// once fn has run, since a rolled-back write may have left
// (now-stale) entries in it.
func (s *Store) ForWrite(fn func(*WriteGuard) (Outcome, error)) (Outcome, error) {
	s.topology.Lock()
	defer s.topology.Unlock()

	s.storageMu.Lock()
	defer s.storageMu.Unlock()
	if s.stopped {
		return OutcomeApplied, coreerrors.Stopped
	}

	tx, err := s.transactor.BeginWrite()
	if err != nil {
		return OutcomeApplied, coreerrors.Internal("beginning certificate write transaction", err)
	}

	seed, err := s.rebuildFrom(tx)
	if err != nil {
		_ = tx.Rollback()
		return OutcomeApplied, coreerrors.Internal("seeding write-batch state", err)
	}

	guard := &WriteGuard{store: s, tx: tx, state: seed}
	outcome, fnErr := fn(guard)

	var finalErr error
	if fnErr == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			finalErr = coreerrors.Internal("committing certificate batch", commitErr)
		}
	} else {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			var combined *multierror.Error
			combined = multierror.Append(combined, fnErr, rollbackErr)
			finalErr = coreerrors.Internal("rolling back certificate batch", combined)
		} else {
			finalErr = fnErr
		}
	}

	s.cacheMu.Lock()
	s.cache = nil
	s.cacheMu.Unlock()

	return outcome, finalErr
}

// ForReadWithRequirements is ForRead, but first ensures the local
// state already reflects requirements; if not, it drops to a write
// batch, polls the server, ingests whatever comes back, and retries.
// The loop terminates because every successful poll strictly advances
// at least one topic timestamp (or IngestBatch returns an error).
func (s *Store) ForReadWithRequirements(ctx context.Context, requirements types.PerTopicLastTimestamps, fn func(*ReadGuard) error) error {
	for {
		var upToDate bool
		var result error
		err := s.ForRead(func(g *ReadGuard) error {
			last, err := g.LastTimestamps()
			if err != nil {
				return err
			}
			upToDate = last.IsUpToDate(requirements)
			if !upToDate {
				return nil
			}
			result = fn(g)
			return nil
		})
		if err != nil {
			return err
		}
		if upToDate {
			return result
		}

		last, err := s.lastTimestampsSnapshot()
		if err != nil {
			return err
		}
		rawCerts, err := s.client.PollCertificates(ctx, &last)
		if err != nil {
			metrics.ServerPollsTotal.WithLabelValues("offline").Inc()
			return coreerrors.Offline
		}
		metrics.ServerPollsTotal.WithLabelValues("ok").Inc()
		if _, err := s.IngestBatch(rawCerts); err != nil {
			return err
		}
	}
}

func (s *Store) lastTimestampsSnapshot() (types.PerTopicLastTimestamps, error) {
	var out types.PerTopicLastTimestamps
	err := s.ForRead(func(g *ReadGuard) error {
		var lastErr error
		out, lastErr = g.LastTimestamps()
		return lastErr
	})
	return out, err
}

// rebuildFrom replays the whole certificate log (through src, which
// may be the live storage handle or an in-flight write transaction)
// into a fresh aggregateState.
func (s *Store) rebuildFrom(src localdb.Store) (*aggregateState, error) {
	agg := newAggregateState(s.rootKey)
	entries, err := src.GetAllCertificatesEncrypted(localdb.UpToLatest())
	if err != nil {
		return nil, fmt.Errorf("scanning certificate log: %w", err)
	}
	for _, entry := range entries {
		cert, err := decryptAndDecode(s.deviceKey, entry.Blob)
		if err != nil {
			return nil, fmt.Errorf("replaying certificate at index %d: %w", entry.Index, err)
		}
		agg.apply(cert, entry.Index)
	}
	return agg, nil
}

func decryptAndDecode(key types.SymmetricKey, blob []byte) (*types.Certificate, error) {
	raw, err := cryptocore.DecryptBlob(key, blob)
	if err != nil {
		return nil, fmt.Errorf("decrypting stored certificate: %w", err)
	}
	return certvalidator.Decode(raw)
}

// IngestBatch applies rawCerts, in order, under a single ForWrite
// transaction (spec §4.3). It detects a redacted-flavor switch: a
// UserUpdate for the local user whose new profile crosses the
// Outsider boundary. On switch, every certificate applied so far
// (including the switching one) is discarded via
// ForgetAllCertificates and the batch returns OutcomeSwitched; the
// caller must re-poll starting at index 1. A switch is never raised
// on the very first batch, since empty storage had no earlier flavor
// to switch away from.
//
// This lives on Store itself, rather than on pkg/certingestor, so
// that ForReadWithRequirements's own retry loop can ingest without
// certstore importing certingestor back.
func (s *Store) IngestBatch(rawCerts [][]byte) (Outcome, error) {
	timer := metrics.NewTimer()
	outcome, err := s.ForWrite(func(g *WriteGuard) (Outcome, error) {
		firstEverBatch := g.state.lastGlobalIndex == 0

		for _, raw := range rawCerts {
			claimedIndex := g.state.lastGlobalIndex + 1
			previousProfile, hadProfile := g.state.UserProfile(s.localUserID)

			cert, err := g.AddCertificate(raw, claimedIndex)
			if err != nil {
				return OutcomeApplied, err
			}

			if firstEverBatch || !hadProfile || cert.Kind != types.CertificateKindUserUpdate {
				continue
			}
			update := cert.UserUpdate
			if update.UserID != s.localUserID {
				continue
			}
			crossedOutsiderBoundary := (previousProfile == types.ProfileOutsider) != (update.NewProfile == types.ProfileOutsider)
			if !crossedOutsiderBoundary {
				continue
			}

			if err := g.ForgetAllCertificates(); err != nil {
				return OutcomeApplied, err
			}
			return OutcomeSwitched, nil
		}

		return OutcomeApplied, nil
	})
	timer.ObserveDuration(metrics.CertIngestDuration)
	if err != nil {
		metrics.CertificatesIngestedTotal.WithLabelValues("error").Inc()
		return outcome, err
	}
	metrics.CertificatesIngestedTotal.WithLabelValues(outcome.String()).Inc()
	return outcome, nil
}
