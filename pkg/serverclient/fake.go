package serverclient

import (
	"context"
	"sort"
	"sync"

	"github.com/cuemby/parsec-core/pkg/coreerrors"
	"github.com/cuemby/parsec-core/pkg/types"
)

// storedCertificate is one entry in Fake's in-memory certificate log,
// ordered the way a real server would hand certificates back: strict
// index order.
type storedCertificate struct {
	index     types.IndexInt
	topic     types.Topic
	timestamp types.DateTime
	blob      []byte
}

// manifestRecord pairs an encrypted manifest with the certificate
// requirements the caller must validate it against, per
// FetchManifest's contract.
type manifestRecord struct {
	blob         []byte
	requirements types.PerTopicLastTimestamps
}

// Fake is an in-memory ServerClient double. It backs tests exercising
// CertIngestor/PathResolver without a real network transport, and the
// CLI's offline demo mode (spec §6.2: "the real wire transport is out
// of scope").
type Fake struct {
	mu        sync.Mutex
	certs     []storedCertificate
	manifests map[types.EntryID]manifestRecord
	offline   bool
}

// NewFake returns an empty Fake, ready to have certificates and
// manifests seeded onto it via Seed*.
func NewFake() *Fake {
	return &Fake{
		manifests: make(map[types.EntryID]manifestRecord),
	}
}

// SetOffline flips the Fake's reachability. While offline, every
// method returns coreerrors.Offline, mirroring a real transport
// failure.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// SeedCertificate appends a certificate to the fake server's log. The
// caller is responsible for assigning indices in strictly increasing
// order, the way a real server's append-only log would.
func (f *Fake) SeedCertificate(index types.IndexInt, topic types.Topic, timestamp types.DateTime, encryptedBlob []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certs = append(f.certs, storedCertificate{index: index, topic: topic, timestamp: timestamp, blob: encryptedBlob})
}

// SeedManifest registers the encrypted manifest and validation
// requirements FetchManifest should return for entryID.
func (f *Fake) SeedManifest(entryID types.EntryID, encryptedBlob []byte, requirements types.PerTopicLastTimestamps) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[entryID] = manifestRecord{blob: encryptedBlob, requirements: requirements}
}

func (f *Fake) PollCertificates(ctx context.Context, needed *types.PerTopicLastTimestamps) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.offline {
		return nil, coreerrors.Offline
	}
	if err := ctx.Err(); err != nil {
		return nil, coreerrors.Internal("poll_certificates cancelled", err)
	}

	var lastKnown types.PerTopicLastTimestamps
	if needed != nil {
		lastKnown = *needed
	} else {
		lastKnown = types.NewPerTopicLastTimestamps()
	}

	sorted := append([]storedCertificate(nil), f.certs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].index < sorted[j].index })

	var out [][]byte
	for _, c := range sorted {
		if isBeforeOrAtTail(c, lastKnown) {
			continue
		}
		out = append(out, c.blob)
	}
	return out, nil
}

// isBeforeOrAtTail reports whether c's topic tail (per lastKnown) is
// already at or past c's own timestamp — i.e. the caller has already
// seen an equally-or-more-recent certificate on this topic, so c
// would be a duplicate to resend. A real server tracks this by index
// rather than timestamp; the fake approximates it since it's only
// ever compared against certificates it itself generated in index
// order.
func isBeforeOrAtTail(c storedCertificate, lastKnown types.PerTopicLastTimestamps) bool {
	switch c.topic.Kind {
	case types.TopicCommon:
		return lastKnown.Common != nil && !c.timestamp.After(*lastKnown.Common)
	case types.TopicSequester:
		return lastKnown.Sequester != nil && !c.timestamp.After(*lastKnown.Sequester)
	case types.TopicShamirRecovery:
		return lastKnown.ShamirRecovery != nil && !c.timestamp.After(*lastKnown.ShamirRecovery)
	case types.TopicRealm:
		have, ok := lastKnown.Realm[c.topic.Realm]
		return ok && !c.timestamp.After(have)
	default:
		return false
	}
}

func (f *Fake) FetchManifest(ctx context.Context, entryID types.EntryID) ([]byte, types.PerTopicLastTimestamps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.offline {
		return nil, types.PerTopicLastTimestamps{}, coreerrors.Offline
	}
	if err := ctx.Err(); err != nil {
		return nil, types.PerTopicLastTimestamps{}, coreerrors.Internal("fetch_manifest cancelled", err)
	}

	rec, ok := f.manifests[entryID]
	if !ok {
		return nil, types.PerTopicLastTimestamps{}, coreerrors.EntryNotFound
	}
	return rec.blob, rec.requirements.Clone(), nil
}

var _ Client = (*Fake)(nil)
