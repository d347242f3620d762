// Package settings holds the durable per-scope bot configuration: whether
// auto-reply is enabled, the reply delay, the reply pool, the privileged
// identities and feature flags.
package settings

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ScopeKey names a configuration scope: GlobalScope or a chat ID.
type ScopeKey string

// GlobalScope is the single shared scope used in global scope mode. Chat IDs
// are decimal integers so it cannot collide with one.
const GlobalScope ScopeKey = "global"

// ChatScope returns the scope key for a platform chat ID.
func ChatScope(chatID string) ScopeKey {
	return ScopeKey(chatID)
}

// Identity is a platform user ID. Valid identities are strictly positive.
type Identity int64

// ParseIdentity parses a decimal, strictly positive user ID.
func ParseIdentity(s string) (Identity, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidIdentity
	}
	return Identity(n), nil
}

// String returns the decimal form of the identity.
func (id Identity) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Flag names an optional per-scope feature switch.
type Flag string

// FlagNameChange permits renaming the chat through /settitle.
const FlagNameChange Flag = "namechange"

// KnownFlags lists every flag accepted by ParseFlag.
var KnownFlags = []Flag{FlagNameChange}

// ParseFlag returns the flag named s, case-insensitively.
func ParseFlag(s string) (Flag, bool) {
	f := Flag(strings.ToLower(strings.TrimSpace(s)))
	return f, slices.Contains(KnownFlags, f)
}

// Record is the configuration of one scope.
type Record struct {
	Enabled       bool
	DelaySeconds  float64
	AutoReplies   []string
	PrivilegedIDs []Identity
	Flags         map[Flag]bool
}

// Flag reports whether f is switched on. Unset flags are off.
func (r Record) Flag(f Flag) bool {
	return r.Flags[f]
}

// IsPrivileged reports whether id is in the privileged set.
func (r Record) IsPrivileged(id Identity) bool {
	_, found := slices.BinarySearch(r.PrivilegedIDs, id)
	return found
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	cp := r
	cp.AutoReplies = slices.Clone(r.AutoReplies)
	if cp.AutoReplies == nil {
		cp.AutoReplies = []string{}
	}
	cp.PrivilegedIDs = slices.Clone(r.PrivilegedIDs)
	cp.Flags = maps.Clone(r.Flags)
	return cp
}

// Defaults seeds records created on first access.
type Defaults struct {
	Owner Identity
	Delay float64
	Reply string
}

// DefaultDelay and DefaultReply are used when Defaults leaves them unset.
const (
	DefaultDelay = 2.0
	DefaultReply = "Hi! I'm here."
)

func (d Defaults) withFallbacks() Defaults {
	if !ValidDelay(d.Delay) {
		d.Delay = DefaultDelay
	}
	if d.Reply == "" {
		d.Reply = DefaultReply
	}
	return d
}

// NewRecord returns the record a never-accessed scope starts with.
func (d Defaults) NewRecord() Record {
	d = d.withFallbacks()
	return Record{
		Enabled:       false,
		DelaySeconds:  d.Delay,
		AutoReplies:   []string{d.Reply},
		PrivilegedIDs: []Identity{d.Owner},
	}
}

// MaxDelaySeconds is the longest delay a time.Duration can hold, about 292
// years.
const MaxDelaySeconds = float64(math.MaxInt64 / int64(time.Second))

// ValidDelay reports whether v is a usable delay in seconds: finite, not
// negative and no longer than MaxDelaySeconds.
func ValidDelay(v float64) bool {
	return v >= 0 && v <= MaxDelaySeconds && !math.IsNaN(v)
}

// Delay returns DelaySeconds as a duration. Values past MaxDelaySeconds are
// clamped to it; negative and NaN values give zero.
func (r Record) Delay() time.Duration {
	switch v := r.DelaySeconds; {
	case v >= MaxDelaySeconds:
		return time.Duration(math.MaxInt64)
	case v > 0:
		return time.Duration(v * float64(time.Second))
	default:
		return 0
	}
}

// normalize restores the structural invariants of r: a non-nil reply pool and
// a sorted, duplicate-free privileged set containing the owner.
func normalize(r *Record, owner Identity) {
	if r.AutoReplies == nil {
		r.AutoReplies = []string{}
	}
	ids := r.PrivilegedIDs[:0:0]
	for _, id := range r.PrivilegedIDs {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	if owner > 0 {
		ids = append(ids, owner)
	}
	slices.Sort(ids)
	r.PrivilegedIDs = slices.Compact(ids)
	for f, on := range r.Flags {
		if !on {
			delete(r.Flags, f)
		}
	}
	if len(r.Flags) == 0 {
		r.Flags = nil
	}
}
