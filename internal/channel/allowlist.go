package channel

import (
	"strings"

	"github.com/flemzord/autoreply/pkg/message"
)

// AllowList restricts the chats and users the bot serves. Unlike a
// deny-by-default list, an empty AllowList serves everyone: the bot is meant
// to be added to arbitrary groups unless the operator narrows it down.
type AllowList struct {
	users map[string]struct{}
	chats map[string]struct{}
}

// NewAllowList creates an AllowList. Entries are trimmed and lowercased.
func NewAllowList(users, chats []string) *AllowList {
	a := &AllowList{
		users: make(map[string]struct{}, len(users)),
		chats: make(map[string]struct{}, len(chats)),
	}
	for _, u := range users {
		if k := normalize(u); k != "" {
			a.users[k] = struct{}{}
		}
	}
	for _, c := range chats {
		if k := normalize(c); k != "" {
			a.chats[k] = struct{}{}
		}
	}
	return a
}

// Restricted reports whether the list narrows anything down.
func (a *AllowList) Restricted() bool {
	return a != nil && (len(a.users) > 0 || len(a.chats) > 0)
}

// IsAllowed reports whether msg may be handled: always when the list is
// unrestricted, otherwise when the chat ID, sender ID or sender username is
// listed.
func (a *AllowList) IsAllowed(msg message.InboundMessage) bool {
	if !a.Restricted() {
		return true
	}
	if _, ok := a.chats[normalize(msg.Chat.ID)]; ok {
		return true
	}
	if _, ok := a.users[normalize(msg.Sender.ID)]; ok {
		return true
	}
	if u := normalize(msg.Sender.Username); u != "" {
		if _, ok := a.users["@"+strings.TrimPrefix(u, "@")]; ok {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
