// Package command parses and executes the bot's administrative commands.
//
// Every command is a typed variant produced by the lookup table in table.go.
// Execution always runs in the same order: parse the arguments, authorize the
// sender, check the chat context, then apply the change through the store.
package command

import "github.com/flemzord/autoreply/internal/settings"

// Command is one parsed invocation. The set of variants is closed.
type Command interface {
	isCommand()
}

type (
	// SetEnabled switches auto-reply on or off for the scope.
	SetEnabled struct{ Enabled bool }
	// SetDelay sets the auto-reply delay.
	SetDelay struct{ Seconds float64 }
	// AddReply appends a reply to the pool.
	AddReply struct{ Text string }
	// RemoveReply removes the reply at Index.
	RemoveReply struct{ Index int }
	// ListReplies lists the reply pool.
	ListReplies struct{}
	// AddPrivileged grants command rights in the scope.
	AddPrivileged struct{ Target IdentityRef }
	// RemovePrivileged revokes command rights in the scope.
	RemovePrivileged struct{ Target IdentityRef }
	// ListPrivileged lists the privileged identities.
	ListPrivileged struct{}
	// ToggleFlag flips a feature flag.
	ToggleFlag struct{ Flag settings.Flag }
	// SetTitle renames the chat.
	SetTitle struct{ Title string }
	// CreateInvite asks the platform for an invite link.
	CreateInvite struct{}
	// Ban removes a member from the chat.
	Ban struct{ Target IdentityRef }
	// Start greets the caller.
	Start struct{}
	// Help lists the commands.
	Help struct{}
	// Status shows the scope configuration.
	Status struct{}
)

func (SetEnabled) isCommand()       {}
func (SetDelay) isCommand()         {}
func (AddReply) isCommand()         {}
func (RemoveReply) isCommand()      {}
func (ListReplies) isCommand()      {}
func (AddPrivileged) isCommand()    {}
func (RemovePrivileged) isCommand() {}
func (ListPrivileged) isCommand()   {}
func (ToggleFlag) isCommand()       {}
func (SetTitle) isCommand()         {}
func (CreateInvite) isCommand()     {}
func (Ban) isCommand()              {}
func (Start) isCommand()            {}
func (Help) isCommand()             {}
func (Status) isCommand()           {}

// IdentityRef names a user as a numeric ID, an @handle to resolve through the
// platform, or the author of the message being replied to.
type IdentityRef struct {
	ID        settings.Identity
	Handle    string
	FromReply bool
}
