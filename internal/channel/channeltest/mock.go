// Package channeltest provides a recording channel for tests.
package channeltest

import (
	"context"
	"slices"
	"sync"

	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/core"
	"github.com/flemzord/autoreply/pkg/message"
)

// MockChannel records sent messages and admin calls and lets tests push
// inbound messages through the allow-list and inbox.
type MockChannel struct {
	name      string
	allowList *channel.AllowList

	mu     sync.Mutex
	inbox  func(msg message.InboundMessage) error
	sent   []message.OutboundMessage
	titles []string
	bans   []int64
	notify chan struct{}

	// Optional overrides.
	SendFunc    func(ctx context.Context, msg message.OutboundMessage) error
	InviteLink  string
	AdminErr    error
	Handles     map[string]int64
	SetTitleErr error
}

var (
	_ channel.Channel = (*MockChannel)(nil)
	_ channel.Admin   = (*MockChannel)(nil)
)

// NewMockChannel creates a MockChannel. A nil allowList serves everyone.
func NewMockChannel(name string, allowList *channel.AllowList) *MockChannel {
	return &MockChannel{name: name, allowList: allowList, notify: make(chan struct{}, 64)}
}

// ModuleInfo implements core.Module.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID("channel." + m.name),
		New: func() core.Module { return NewMockChannel(m.name, m.allowList) },
	}
}

// Send records msg, or delegates to SendFunc when set.
func (m *MockChannel) Send(ctx context.Context, msg message.OutboundMessage) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// SetInbox implements channel.Channel.
func (m *MockChannel) SetInbox(fn func(msg message.InboundMessage) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// SimulateMessage runs msg through the allow-list into the inbox.
func (m *MockChannel) SimulateMessage(msg message.InboundMessage) error {
	m.mu.Lock()
	inbox := m.inbox
	m.mu.Unlock()

	if !m.allowList.IsAllowed(msg) {
		return channel.ErrDenied
	}
	if inbox == nil {
		return channel.ErrNoInbox
	}
	msg.Channel = m.name
	return inbox(msg)
}

// SentMessages returns a copy of everything sent so far.
func (m *MockChannel) SentMessages() []message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// Sent returns a channel that receives a value after every recorded send.
func (m *MockChannel) Sent() <-chan struct{} {
	return m.notify
}

// Titles returns the titles passed to SetTitle.
func (m *MockChannel) Titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.titles)
}

// Bans returns the user IDs passed to BanMember.
func (m *MockChannel) Bans() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.bans)
}

// Reset clears recorded messages and admin calls.
func (m *MockChannel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent, m.titles, m.bans = nil, nil, nil
}

// SetTitle implements channel.Admin.
func (m *MockChannel) SetTitle(_ context.Context, _ message.Chat, title string) error {
	if m.SetTitleErr != nil {
		return m.SetTitleErr
	}
	if m.AdminErr != nil {
		return m.AdminErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
	return nil
}

// CreateInviteLink implements channel.Admin.
func (m *MockChannel) CreateInviteLink(_ context.Context, chat message.Chat) (string, error) {
	if m.AdminErr != nil {
		return "", m.AdminErr
	}
	if m.InviteLink != "" {
		return m.InviteLink, nil
	}
	return "https://t.me/+" + chat.ID, nil
}

// BanMember implements channel.Admin.
func (m *MockChannel) BanMember(_ context.Context, _ message.Chat, userID int64) error {
	if m.AdminErr != nil {
		return m.AdminErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bans = append(m.bans, userID)
	return nil
}

// ResolveIdentity implements channel.Admin using the Handles map.
func (m *MockChannel) ResolveIdentity(_ context.Context, handle string) (int64, error) {
	if id, ok := m.Handles[handle]; ok {
		return id, nil
	}
	return 0, channel.ErrIdentityNotFound
}
