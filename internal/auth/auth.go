// Package auth decides who may run privileged bot commands.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/autoreply/internal/settings"
)

// Policy names accepted by New.
const (
	SingleOwner = "single_owner"
	SudoList    = "sudo_list"
)

// ErrUnknownPolicy reports an unsupported policy name.
var ErrUnknownPolicy = errors.New("auth: unknown policy")

// Policy authorizes an identity for privileged operations in a scope.
type Policy interface {
	IsAuthorized(ctx context.Context, id settings.Identity, scope settings.ScopeKey) bool
	Name() string
}

// RecordAuthorizer is implemented by policies that can decide from the scope
// record alone. The command processor uses it to repeat the check inside
// the store's critical section, so a revocation that lands between the
// first check and the write still wins.
type RecordAuthorizer interface {
	AuthorizedBy(rec settings.Record, id settings.Identity) bool
}

// RecordLookup returns the record for a scope. *settings.Store satisfies it.
type RecordLookup interface {
	Get(ctx context.Context, key settings.ScopeKey) settings.Record
}

// New returns the policy called name. An empty name selects SingleOwner.
func New(name string, owner settings.Identity, lookup RecordLookup) (Policy, error) {
	switch name {
	case "", SingleOwner:
		return Owner{ID: owner}, nil
	case SudoList:
		if lookup == nil {
			return nil, errors.New("auth: sudo_list needs a record lookup")
		}
		return Sudoers{Lookup: lookup}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Owner authorizes exactly one identity in every scope.
type Owner struct {
	ID settings.Identity
}

// IsAuthorized reports whether id is the owner.
func (o Owner) IsAuthorized(_ context.Context, id settings.Identity, _ settings.ScopeKey) bool {
	return id > 0 && id == o.ID
}

// AuthorizedBy reports whether id is the owner; rec is not consulted.
func (o Owner) AuthorizedBy(_ settings.Record, id settings.Identity) bool {
	return id > 0 && id == o.ID
}

// Name returns SingleOwner.
func (Owner) Name() string { return SingleOwner }

// Sudoers authorizes the identities listed in the scope's privileged set.
// The store always keeps the owner in that set.
type Sudoers struct {
	Lookup RecordLookup
}

// IsAuthorized reports whether id is privileged in scope.
func (s Sudoers) IsAuthorized(ctx context.Context, id settings.Identity, scope settings.ScopeKey) bool {
	if id <= 0 {
		return false
	}
	return s.AuthorizedBy(s.Lookup.Get(ctx, scope), id)
}

// AuthorizedBy reports whether id is in rec's privileged set.
func (Sudoers) AuthorizedBy(rec settings.Record, id settings.Identity) bool {
	return id > 0 && rec.IsPrivileged(id)
}

// Name returns SudoList.
func (Sudoers) Name() string { return SudoList }
