// Package certingestor drives CertStore.IngestBatch on a background
// polling interval, independent of any ForRead call that happens to
// need fresher data sooner (spec §4.3). It is a thin orchestration
// layer: all of the actual validate-and-commit logic, including
// redacted-flavor-switch detection, lives on certstore.Store itself,
// so this package only ever imports certstore, never the reverse.
//
// Grounded on the teacher repository's pkg/reconciler: a
// ticker-plus-stopCh background loop with a mutex-guarded single-flight
// cycle.
package certingestor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/parsec-core/pkg/certstore"
	"github.com/cuemby/parsec-core/pkg/events"
	"github.com/cuemby/parsec-core/pkg/log"
	"github.com/cuemby/parsec-core/pkg/serverclient"
	"github.com/cuemby/parsec-core/pkg/types"
)

const defaultPollInterval = 30 * time.Second

// Ingestor periodically asks ServerClient for certificates newer than
// the local tail and ingests whatever comes back.
type Ingestor struct {
	store  *certstore.Store
	client serverclient.Client
	bus    *events.Broker
	logger zerolog.Logger

	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New constructs an Ingestor. interval <= 0 selects defaultPollInterval.
func New(store *certstore.Store, client serverclient.Client, bus *events.Broker, interval time.Duration) *Ingestor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Ingestor{
		store:    store,
		client:   client,
		bus:      bus,
		logger:   log.WithComponent("certingestor"),
		interval: interval,
	}
}

// Start begins the polling loop in the background. Calling Start twice
// without an intervening Stop is a no-op.
func (i *Ingestor) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return
	}
	i.running = true
	i.stopCh = make(chan struct{})
	go i.run(i.stopCh)
}

// Stop ends the polling loop. Safe to call even if Start was never
// called.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return
	}
	i.running = false
	close(i.stopCh)
}

func (i *Ingestor) run(stopCh chan struct{}) {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	i.logger.Info().Dur("interval", i.interval).Msg("certificate ingestor started")

	for {
		select {
		case <-ticker.C:
			i.pollOnce(context.Background())
		case <-stopCh:
			i.logger.Info().Msg("certificate ingestor stopped")
			return
		}
	}
}

// pollOnce runs one fetch-and-ingest cycle. It never returns an error,
// since there is no caller waiting on a background tick: a rejected
// batch is logged and published as EventCertificateInvalid, while a
// failure to read the local tail or to poll the server is only logged.
func (i *Ingestor) pollOnce(ctx context.Context) {
	needed, err := i.localTail()
	if err != nil {
		i.logger.Error().Err(err).Msg("reading local certificate tail")
		return
	}

	rawCerts, err := i.client.PollCertificates(ctx, &needed)
	if err != nil {
		i.logger.Warn().Err(err).Msg("polling server for new certificates")
		return
	}
	if len(rawCerts) == 0 {
		return
	}

	i.ingest(rawCerts)
}

// localTail returns the most recent timestamp this store has recorded
// per topic, the form ServerClient.PollCertificates needs to decide
// what's new.
func (i *Ingestor) localTail() (types.PerTopicLastTimestamps, error) {
	var out types.PerTopicLastTimestamps
	err := i.store.ForRead(func(g *certstore.ReadGuard) error {
		var err error
		out, err = g.LastTimestamps()
		return err
	})
	return out, err
}

func (i *Ingestor) ingest(rawCerts [][]byte) {
	outcome, err := i.store.IngestBatch(rawCerts)
	if err != nil {
		i.bus.Publish(&events.Event{
			Type:    events.EventCertificateInvalid,
			Message: err.Error(),
		})
		i.logger.Error().Err(err).Msg("ingesting certificate batch")
		return
	}

	if outcome == certstore.OutcomeSwitched {
		i.bus.Publish(&events.Event{
			Type:    events.EventRealmSwitched,
			Message: "local user's profile crossed the Outsider boundary; certificate cache was reset and must be re-synced from index 1",
		})
		i.logger.Warn().Msg("redacted-flavor switch: certificate log forgotten, resyncing from scratch")
		i.pollOnce(context.Background())
		return
	}

	i.bus.Publish(&events.Event{
		Type:    events.EventCertificatesIngested,
		Message: fmt.Sprintf("ingested %d certificate(s)", len(rawCerts)),
	})
}
