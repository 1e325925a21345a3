/*
Package events provides an in-memory event broker for the certificate
core's pub/sub notifications — adapted from the teacher's
pkg/events.Broker almost unchanged in shape (buffered event channel,
broadcast loop, per-subscriber buffered channel, non-blocking publish
that drops on a full subscriber), with the event catalog replaced to
match this domain.

# Event catalog

Every event below is published with its Message set and no Metadata.

CertificateInvalid:
  - Published when: CertIngestor has a polled batch rejected by
    CertStore (spec §4.3/§7)
  - Message: the rejection error

CertificatesIngested:
  - Published when: CertIngestor commits a batch to CertStore
  - Message: how many certificates were ingested

RealmSwitched:
  - Published when: CertIngestor detects a flavor switch on a user's
    profile boundary and forgets the local certificate log (spec §4.3)

ManifestInvalidated:
  - Published when: ManifestCache.Put writes a manifest, whether or
    not an entry for it was already cached (spec §4.4)
  - Message: the id of the written manifest

# Design

Publish is non-blocking: a full subscriber buffer means that
subscriber misses the event rather than stalling the publisher. This
is acceptable here because every subscriber is a secondary observer
(metrics, CLI watch commands, a future sync engine) — nothing in
CertStore/CertIngestor/ManifestCache's own correctness depends on an
event actually being delivered.
*/
package events
