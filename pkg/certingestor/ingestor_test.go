package certingestor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/parsec-core/pkg/certstore"
	"github.com/cuemby/parsec-core/pkg/cryptocore"
	"github.com/cuemby/parsec-core/pkg/events"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/serverclient"
	"github.com/cuemby/parsec-core/pkg/types"
)

func newTestStore(t *testing.T, rootVerify types.VerifyKey, localUser types.UserID, client serverclient.Client, bus *events.Broker) *certstore.Store {
	t.Helper()

	dir, err := os.MkdirTemp("", "parsec-certingestor-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	storage, err := localdb.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	deviceKey, err := cryptocore.DeriveDeviceKey([]byte("ingestor-test-secret"))
	require.NoError(t, err)

	store, err := certstore.New(certstore.Config{
		Storage:     storage,
		Transactor:  storage,
		Client:      client,
		Bus:         bus,
		DeviceKey:   deviceKey,
		RootKey:     rootVerify,
		LocalUserID: localUser,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Stop() })

	return store
}

func waitForEvent(t *testing.T, sub events.Subscriber) *events.Event {
	t.Helper()
	select {
	case evt := <-sub:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return nil
	}
}

func TestIngestorAppliesNewCertificatesAndPublishes(t *testing.T) {
	rootSign, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	userID := types.NewUserID()
	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	sub := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(sub) })

	fake := serverclient.NewFake()
	store := newTestStore(t, rootVerify, userID, fake, bus)

	cert := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:             userID,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	raw, err := cryptocore.DumpSign(cert, rootSign)
	require.NoError(t, err)
	fake.SeedCertificate(1, types.CommonTopic(), cert.Timestamp(), raw)

	ing := New(store, fake, bus, 20*time.Millisecond)
	ing.Start()
	t.Cleanup(ing.Stop)

	evt := waitForEvent(t, sub)
	assert.Equal(t, events.EventCertificatesIngested, evt.Type)

	err = store.ForRead(func(g *certstore.ReadGuard) error {
		view, err := g.StateView()
		if err != nil {
			return err
		}
		assert.True(t, view.UserExists(userID))
		return nil
	})
	require.NoError(t, err)
}

func TestIngestorPublishesInvalidOnBadSignature(t *testing.T) {
	_, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)
	impostorSign, _, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	userID := types.NewUserID()
	bus := events.NewBroker()
	bus.Start()
	t.Cleanup(bus.Stop)

	sub := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(sub) })

	fake := serverclient.NewFake()
	store := newTestStore(t, rootVerify, userID, fake, bus)

	cert := types.Certificate{
		Kind: types.CertificateKindUser,
		User: &types.UserCertificate{
			CertificateHeader:  types.CertificateHeader{Author: types.RootAuthor(), Timestamp: types.Now()},
			UserID:             userID,
			Profile:            types.ProfileAdmin,
			InitialUserRealmID: types.NewRealmID(),
		},
	}
	// Signed by a key that isn't the organization's root key: the
	// store must reject it on signature verification.
	raw, err := cryptocore.DumpSign(cert, impostorSign)
	require.NoError(t, err)
	fake.SeedCertificate(1, types.CommonTopic(), cert.Timestamp(), raw)

	ing := New(store, fake, bus, 20*time.Millisecond)
	ing.Start()
	t.Cleanup(ing.Stop)

	evt := waitForEvent(t, sub)
	assert.Equal(t, events.EventCertificateInvalid, evt.Type)
}

func TestIngestorDefaultsIntervalWhenNonPositive(t *testing.T) {
	_, rootVerify, err := cryptocore.GenerateSigningKey()
	require.NoError(t, err)

	userID := types.NewUserID()
	bus := events.NewBroker()
	fake := serverclient.NewFake()
	store := newTestStore(t, rootVerify, userID, fake, bus)

	ing := New(store, fake, bus, 0)
	assert.Equal(t, defaultPollInterval, ing.interval)
}
