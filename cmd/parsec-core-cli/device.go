package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/parsec-core/pkg/certstore"
	"github.com/cuemby/parsec-core/pkg/config"
	"github.com/cuemby/parsec-core/pkg/events"
	"github.com/cuemby/parsec-core/pkg/localdb"
	"github.com/cuemby/parsec-core/pkg/manifestcache"
	"github.com/cuemby/parsec-core/pkg/pathresolver"
	"github.com/cuemby/parsec-core/pkg/serverclient"
)

// device bundles one device profile's opened components, the set every
// subcommand needs to read certificate and manifest state. The server
// client is always the in-memory Fake left offline: this tool reads
// what a device already synced to disk, it never talks to a real
// server (spec's "the real wire transport is out of scope" carried
// over to this tool's own scope).
type device struct {
	resolved *config.Resolved
	store    *localdb.BoltStore
	bus      *events.Broker
	certs    *certstore.Store
	cache    *manifestcache.Cache
	resolver *pathresolver.Resolver
}

func openDevice(cmd *cobra.Command) (*device, error) {
	configPath, _ := cmd.Flags().GetString("config")

	overrides := map[string]any{}
	for flag, key := range map[string]string{
		"data-dir":           "data_dir",
		"device-secret-file": "device_secret_file",
		"root-verify-key":    "root_verify_key",
		"user-id":            "user_id",
		"device-id":          "device_id",
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			overrides[key] = v
		}
	}

	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return nil, err
	}
	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	store, err := localdb.NewBoltStore(resolved.DataDir)
	if err != nil {
		return nil, err
	}

	bus := events.NewBroker()
	bus.Start()

	client := serverclient.NewFake()
	client.SetOffline(true)

	certs, err := certstore.New(certstore.Config{
		Storage:     store,
		Transactor:  store,
		Client:      client,
		Bus:         bus,
		DeviceKey:   resolved.DeviceKey,
		RootKey:     resolved.RootVerifyKey,
		LocalUserID: resolved.UserID,
	})
	if err != nil {
		bus.Stop()
		_ = store.Close()
		return nil, err
	}

	cache := manifestcache.New(manifestcache.Config{
		Storage:   store,
		DeviceKey: resolved.DeviceKey,
		Bus:       bus,
	})

	resolver := pathresolver.New(pathresolver.Config{
		Cache:              cache,
		Certs:              certs,
		Client:             client,
		DeviceKey:          resolved.DeviceKey,
		PreventSyncPattern: resolved.PreventSyncPattern,
	})

	return &device{
		resolved: resolved,
		store:    store,
		bus:      bus,
		certs:    certs,
		cache:    cache,
		resolver: resolver,
	}, nil
}

func (d *device) Close() {
	_ = d.certs.Stop()
	d.bus.Stop()
}
