package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/autoreply/internal/settings"
)

// maxTitleLen is Telegram's chat title limit, in characters.
const maxTitleLen = 128

// Spec describes one entry of the command table.
type Spec struct {
	Name    string
	Usage   string
	Summary string
	// Privileged commands pass through the authorization policy.
	Privileged bool
	// ScopeBound commands change the chat's own record and are refused in
	// private chats when scopes are per chat.
	ScopeBound bool
	// GroupOnly commands act on the chat itself and need a group.
	GroupOnly bool

	parse func(args string) (Command, error)
}

var table = []Spec{
	{Name: "start", Usage: "/start", Summary: "check that the bot is online", parse: noArgs(Start{})},
	{Name: "help", Usage: "/help", Summary: "list commands", parse: noArgs(Help{})},
	{Name: "status", Usage: "/status", Summary: "show this chat's settings", parse: noArgs(Status{})},
	{Name: "enable", Usage: "/enable", Summary: "turn auto-replies on", Privileged: true, ScopeBound: true, parse: noArgs(SetEnabled{Enabled: true})},
	{Name: "disable", Usage: "/disable", Summary: "turn auto-replies off", Privileged: true, ScopeBound: true, parse: noArgs(SetEnabled{Enabled: false})},
	{Name: "setdelay", Usage: "/setdelay <seconds>", Summary: "set the reply delay", Privileged: true, ScopeBound: true, parse: parseSetDelay},
	{Name: "addreply", Usage: "/addreply <text>", Summary: "add an auto-reply", Privileged: true, ScopeBound: true, parse: parseAddReply},
	{Name: "rmreply", Usage: "/rmreply <index>", Summary: "remove an auto-reply", Privileged: true, ScopeBound: true, parse: parseRemoveReply},
	{Name: "listreply", Usage: "/listreply", Summary: "list auto-replies", parse: noArgs(ListReplies{})},
	{Name: "addsudo", Usage: "/addsudo <id|@user> (or reply)", Summary: "grant command rights", Privileged: true, ScopeBound: true, parse: parseIdentityArg(func(r IdentityRef) Command { return AddPrivileged{Target: r} })},
	{Name: "rmsudo", Usage: "/rmsudo <id|@user> (or reply)", Summary: "revoke command rights", Privileged: true, ScopeBound: true, parse: parseIdentityArg(func(r IdentityRef) Command { return RemovePrivileged{Target: r} })},
	{Name: "sudolist", Usage: "/sudolist", Summary: "list users with command rights", Privileged: true, parse: noArgs(ListPrivileged{})},
	{Name: "toggle", Usage: "/toggle <flag>", Summary: "flip a feature flag", Privileged: true, ScopeBound: true, parse: parseToggle},
	{Name: "settitle", Usage: "/settitle <title>", Summary: "rename the group (needs namechange)", Privileged: true, GroupOnly: true, parse: parseSetTitle},
	{Name: "invite", Usage: "/invite", Summary: "create an invite link", Privileged: true, GroupOnly: true, parse: noArgs(CreateInvite{})},
	{Name: "ban", Usage: "/ban <id|@user> (or reply)", Summary: "ban a member", Privileged: true, GroupOnly: true, parse: parseIdentityArg(func(r IdentityRef) Command { return Ban{Target: r} })},
}

var byName = func() map[string]*Spec {
	m := make(map[string]*Spec, len(table))
	for i := range table {
		m[table[i].Name] = &table[i]
	}
	return m
}()

// Lookup returns the table entry for name.
func Lookup(name string) (Spec, bool) {
	s, ok := byName[strings.ToLower(name)]
	if !ok {
		return Spec{}, false
	}
	return *s, true
}

// Specs returns the command table in display order.
func Specs() []Spec {
	out := make([]Spec, len(table))
	copy(out, table)
	return out
}

// Parse resolves name through the table and parses args into a variant.
func Parse(name, args string) (Spec, Command, error) {
	spec, ok := Lookup(name)
	if !ok {
		return Spec{}, nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	cmd, err := spec.parse(strings.TrimSpace(args))
	if err != nil {
		return spec, nil, err
	}
	return spec, cmd, nil
}

// Split separates "/name@bot rest of text" into name and args. ok is false
// when text does not start with prefix or names nothing.
func Split(text, prefix string) (name, args string, ok bool) {
	head, rest, ok := cutCommand(text, prefix)
	if !ok {
		return "", "", false
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Addressee returns the account a command is addressed to, "bot" for
// "/name@bot", or "" when the command carries no suffix.
func Addressee(text, prefix string) string {
	head, _, ok := cutCommand(text, prefix)
	if !ok {
		return ""
	}
	_, to, _ := strings.Cut(head, "@")
	return to
}

// cutCommand splits the command token, prefix removed, from the rest.
func cutCommand(text, prefix string) (head, rest string, ok bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", "", false
	}
	body := strings.TrimPrefix(text, prefix)
	head, rest, _ = strings.Cut(body, " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i:] + " " + rest
		head = head[:i]
	}
	return head, rest, true
}

func noArgs(c Command) func(string) (Command, error) {
	return func(string) (Command, error) { return c, nil }
}

func firstField(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseSetDelay(args string) (Command, error) {
	raw := firstField(args)
	if raw == "" {
		return nil, ErrInvalidNumber
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	if v < 0 {
		return nil, ErrNegativeDelay
	}
	if v > settings.MaxDelaySeconds {
		return nil, fmt.Errorf("%w: at most %.0f seconds", ErrInvalidNumber, settings.MaxDelaySeconds)
	}
	return SetDelay{Seconds: v}, nil
}

func parseAddReply(args string) (Command, error) {
	if args == "" {
		return nil, ErrEmptyText
	}
	return AddReply{Text: args}, nil
}

func parseRemoveReply(args string) (Command, error) {
	raw := firstField(args)
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return RemoveReply{Index: idx}, nil
}

func parseToggle(args string) (Command, error) {
	f, ok := settings.ParseFlag(firstField(args))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlag, firstField(args))
	}
	return ToggleFlag{Flag: f}, nil
}

func parseSetTitle(args string) (Command, error) {
	if args == "" {
		return nil, ErrEmptyText
	}
	if utf8.RuneCountInString(args) > maxTitleLen {
		return nil, fmt.Errorf("%w: at most %d characters", ErrTextTooLong, maxTitleLen)
	}
	return SetTitle{Title: args}, nil
}

func parseIdentityArg(build func(IdentityRef) Command) func(string) (Command, error) {
	return func(args string) (Command, error) {
		raw := firstField(args)
		switch {
		case raw == "":
			return build(IdentityRef{FromReply: true}), nil
		case strings.HasPrefix(raw, "@"):
			if len(raw) == 1 {
				return nil, ErrMalformedIdentity
			}
			return build(IdentityRef{Handle: raw}), nil
		}
		id, err := settings.ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedIdentity, raw)
		}
		return build(IdentityRef{ID: id}), nil
	}
}
