package coreerrors

import (
	"errors"
	"fmt"
)

// Kind is a coarse error category, independent of which component
// raised it. Use KindOf(err), or errors.Is(err, Offline) etc. against
// the sentinel errors below.
type Kind int

const (
	KindInternal Kind = iota
	KindStopped
	KindOffline
	KindInvalidCertificate
	KindInvalidManifest
	KindInvalidKeysBundle
	KindEntryNotFound
	KindSourceNotFound
	KindDestinationNotFound
	KindWouldBlock
	KindNoRealmAccess
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindStopped:
		return "Stopped"
	case KindOffline:
		return "Offline"
	case KindInvalidCertificate:
		return "InvalidCertificate"
	case KindInvalidManifest:
		return "InvalidManifest"
	case KindInvalidKeysBundle:
		return "InvalidKeysBundle"
	case KindEntryNotFound:
		return "EntryNotFound"
	case KindSourceNotFound:
		return "SourceNotFound"
	case KindDestinationNotFound:
		return "DestinationNotFound"
	case KindWouldBlock:
		return "WouldBlock"
	case KindNoRealmAccess:
		return "NoRealmAccess"
	default:
		return "Unknown"
	}
}

// sentinels let callers write errors.Is(err, coreerrors.Stopped) etc.
// without constructing a CoreError by hand.
var (
	Stopped             = &CoreError{Kind: KindStopped, Message: "component has stopped"}
	Offline             = &CoreError{Kind: KindOffline, Message: "cannot reach the server"}
	WouldBlock          = &CoreError{Kind: KindWouldBlock, Message: "would block"}
	NoRealmAccess       = &CoreError{Kind: KindNoRealmAccess, Message: "no access to this realm"}
	EntryNotFound       = &CoreError{Kind: KindEntryNotFound, Message: "entry not found"}
	SourceNotFound      = &CoreError{Kind: KindSourceNotFound, Message: "source entry not found"}
	DestinationNotFound = &CoreError{Kind: KindDestinationNotFound, Message: "destination entry not found"}
)

// CoreError is the concrete error type every component in this core
// returns. Wrap an underlying cause with Err so callers retain the
// original diagnostic via errors.Unwrap.
type CoreError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Err }

// Is lets errors.Is match on Kind alone, ignoring Message/Err, so
// sentinels above compare equal to any CoreError of the same Kind.
func (e *CoreError) Is(target error) bool {
	other, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Internal wraps an unexpected failure with context, mirroring the
// teacher's fmt.Errorf("...: %w", err) idiom but tagged with Kind so
// callers can still distinguish it from a deliberate domain error.
func Internal(context string, err error) *CoreError {
	return &CoreError{Kind: KindInternal, Message: context, Err: err}
}

// InvalidCertificateReason enumerates the precise reason a candidate
// certificate was rejected by CertValidator (spec §4.2).
type InvalidCertificateReason int

const (
	ReasonCorrupted InvalidCertificateReason = iota
	ReasonInvalidIndex
	ReasonIndexAlreadyExists
	ReasonInvalidTimestamp
	ReasonNonExistingAuthor
	ReasonInvalidSignature
	ReasonAuthorNotAdmin
	ReasonAuthorRevoked
	ReasonAuthorNotAllowed
	ReasonUserAlreadyExists
	ReasonUserNotFound
	ReasonUserAlreadyRevoked
	ReasonUserRevoked
	ReasonDeviceAlreadyExists
	ReasonSelfSigned
	ReasonNotSelfSigned
	ReasonSameProfile
	ReasonOutsiderCannotManage
	ReasonSameRole
	ReasonRealmAuthorHasNoRole
	ReasonRealmFirstRoleMustBeSelfOwner
	ReasonRealmRoleTransitionNotAllowed
	ReasonRealmOutsiderCannotShare
	ReasonAuthorIsRoot
	ReasonSequesterAuthorityAlreadyExists
	ReasonSequesterAuthorityMissing
	ReasonSequesterServiceAlreadyExists
	ReasonSequesterServiceNotFound
)

func (r InvalidCertificateReason) String() string {
	names := [...]string{
		"Corrupted", "InvalidIndex", "IndexAlreadyExists", "InvalidTimestamp",
		"NonExistingAuthor", "InvalidSignature", "AuthorNotAdmin", "AuthorRevoked",
		"AuthorNotAllowed", "UserAlreadyExists", "UserNotFound", "UserAlreadyRevoked",
		"UserRevoked", "DeviceAlreadyExists", "SelfSigned", "NotSelfSigned",
		"SameProfile", "OutsiderCannotManage", "SameRole", "RealmAuthorHasNoRole",
		"RealmFirstRoleMustBeSelfOwner", "RealmRoleTransitionNotAllowed",
		"RealmOutsiderCannotShare", "AuthorIsRoot", "SequesterAuthorityAlreadyExists",
		"SequesterAuthorityMissing", "SequesterServiceAlreadyExists", "SequesterServiceNotFound",
	}
	if int(r) < 0 || int(r) >= len(names) {
		return "Unknown"
	}
	return names[r]
}

// InvalidCertificateError carries enough context (which certificate,
// which invariant) for an operator to diagnose a rejected candidate
// without guessing intent, per spec §7's propagation policy.
type InvalidCertificateError struct {
	Reason  InvalidCertificateReason
	Index   int64
	Detail  string
	// LastCertificateTimestamp/CandidateCertificateTimestamp are populated for
	// ReasonInvalidTimestamp, matching spec S2's expected payload.
	LastCertificateTimestamp      *string
	CandidateCertificateTimestamp *string
}

func (e *InvalidCertificateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid certificate at index %d: %s (%s)", e.Index, e.Reason, e.Detail)
	}
	return fmt.Sprintf("invalid certificate at index %d: %s", e.Index, e.Reason)
}

// AsCoreError wraps an InvalidCertificateError as a CoreError so every
// component can return a uniform error type.
func (e *InvalidCertificateError) AsCoreError() *CoreError {
	return &CoreError{Kind: KindInvalidCertificate, Message: e.Error(), Err: e}
}

// KindOf extracts the Kind of any error produced by this core,
// defaulting to KindInternal for anything else (e.g. a raw error from
// a collaborator that wasn't wrapped).
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
