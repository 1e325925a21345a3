package serverclient

import (
	"context"

	"github.com/cuemby/parsec-core/pkg/types"
)

// Client is the ServerClient collaborator contract from spec §6.2.
// Every method may return a *coreerrors.CoreError of kind Offline,
// Stopped, InvalidCertificate, or Internal; FetchManifest also returns
// EntryNotFound for an id the server does not know.
type Client interface {
	// PollCertificates returns certificates in strict index order
	// starting just after the caller's current tail. needed is the
	// caller's last-known PerTopicLastTimestamps; a nil value means
	// "from the very beginning".
	PollCertificates(ctx context.Context, needed *types.PerTopicLastTimestamps) ([][]byte, error)

	// FetchManifest returns the encrypted manifest for entryID plus
	// the certificate requirements under which the caller must
	// validate it before trusting its contents.
	FetchManifest(ctx context.Context, entryID types.EntryID) ([]byte, types.PerTopicLastTimestamps, error)
}
