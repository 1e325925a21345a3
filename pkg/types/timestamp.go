package types

import (
	"encoding/json"
	"time"
)

// DateTime is a UTC, microsecond-precision timestamp. Comparisons are
// total: Before/After/Equal never disagree with Compare.
type DateTime time.Time

// Now returns the current time truncated to microsecond precision, as
// every DateTime in the system must be.
func Now() DateTime {
	return NewDateTime(time.Now())
}

// NewDateTime normalizes an arbitrary time.Time to UTC, microsecond
// precision.
func NewDateTime(t time.Time) DateTime {
	return DateTime(t.UTC().Truncate(time.Microsecond))
}

func (d DateTime) Time() time.Time { return time.Time(d) }

// Compare returns -1, 0, or +1, matching time.Time.Compare.
func (d DateTime) Compare(other DateTime) int {
	return time.Time(d).Compare(time.Time(other))
}

func (d DateTime) Before(other DateTime) bool { return d.Compare(other) < 0 }
func (d DateTime) After(other DateTime) bool  { return d.Compare(other) > 0 }
func (d DateTime) Equal(other DateTime) bool  { return d.Compare(other) == 0 }
func (d DateTime) IsZero() bool               { return time.Time(d).IsZero() }
func (d DateTime) String() string             { return time.Time(d).Format(time.RFC3339Nano) }

// MarshalJSON/UnmarshalJSON are defined explicitly because DateTime is
// a distinct named type over time.Time: Go does not promote
// time.Time's own MarshalJSON to a type defined as "type DateTime
// time.Time", so without these every certificate or manifest payload
// containing a DateTime would silently encode it as "{}".
func (d DateTime) MarshalJSON() ([]byte, error) {
	return time.Time(d).MarshalJSON()
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	*d = NewDateTime(t)
	return nil
}

// Topic partitions the certificate stream. Each topic carries its own
// monotonic timestamp tail (see PerTopicLastTimestamps).
type Topic struct {
	Kind TopicKind
	// Realm is only meaningful when Kind == TopicRealm.
	Realm RealmID
}

type TopicKind int

const (
	TopicCommon TopicKind = iota
	TopicRealm
	TopicSequester
	TopicShamirRecovery
)

func (k TopicKind) String() string {
	switch k {
	case TopicCommon:
		return "common"
	case TopicRealm:
		return "realm"
	case TopicSequester:
		return "sequester"
	case TopicShamirRecovery:
		return "shamir_recovery"
	default:
		return "unknown"
	}
}

func CommonTopic() Topic                  { return Topic{Kind: TopicCommon} }
func SequesterTopic() Topic               { return Topic{Kind: TopicSequester} }
func ShamirRecoveryTopic() Topic          { return Topic{Kind: TopicShamirRecovery} }
func RealmTopic(realm RealmID) Topic      { return Topic{Kind: TopicRealm, Realm: realm} }

// PerTopicLastTimestamps records the most recent certificate timestamp
// observed on each topic. A client is up to date with respect to a set
// of requirements iff, for every topic named in the requirements, its
// stored last timestamp is >= the requirement's timestamp.
type PerTopicLastTimestamps struct {
	Common          *DateTime
	Sequester       *DateTime
	Realm           map[RealmID]DateTime
	ShamirRecovery  *DateTime
}

func NewPerTopicLastTimestamps() PerTopicLastTimestamps {
	return PerTopicLastTimestamps{Realm: make(map[RealmID]DateTime)}
}

// IsUpToDate reports whether every topic named in requirements has a
// stored timestamp at least as recent as required.
func (p PerTopicLastTimestamps) IsUpToDate(requirements PerTopicLastTimestamps) bool {
	if requirements.Common != nil {
		if p.Common == nil || p.Common.Before(*requirements.Common) {
			return false
		}
	}
	if requirements.Sequester != nil {
		if p.Sequester == nil || p.Sequester.Before(*requirements.Sequester) {
			return false
		}
	}
	if requirements.ShamirRecovery != nil {
		if p.ShamirRecovery == nil || p.ShamirRecovery.Before(*requirements.ShamirRecovery) {
			return false
		}
	}
	for realm, needed := range requirements.Realm {
		have, ok := p.Realm[realm]
		if !ok || have.Before(needed) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy, so callers can hand out a
// PerTopicLastTimestamps without the recipient being able to mutate
// the original's Realm map.
func (p PerTopicLastTimestamps) Clone() PerTopicLastTimestamps {
	clone := PerTopicLastTimestamps{Common: p.Common, Sequester: p.Sequester, ShamirRecovery: p.ShamirRecovery}
	clone.Realm = make(map[RealmID]DateTime, len(p.Realm))
	for k, v := range p.Realm {
		clone.Realm[k] = v
	}
	return clone
}
