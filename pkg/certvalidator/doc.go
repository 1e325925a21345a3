/*
Package certvalidator implements the CertValidator component: given a
single encoded candidate certificate, the index the server claims for
it, and a read-only view of everything already accepted, it returns
either the decoded, validated certificate or a precise
coreerrors.InvalidCertificateError. It never mutates anything — the
caller (pkg/certingestor, via pkg/certstore) owns commit/rollback.

The algorithm is grounded on the teacher's pkg/manager/fsm.go Apply
method: a switch-dispatch-by-kind over an ordered sequence of checks,
each one able to short-circuit the whole operation. Certificates
dispatch with a Go type switch over Certificate.Kind, never through an
interface method set, per the tagged-variant design note.
*/
package certvalidator
