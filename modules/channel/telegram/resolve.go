package telegram

import (
	"strings"
	"sync"

	"github.com/flemzord/autoreply/pkg/message"
)

// maxKnownHandles bounds the handle cache. When full it starts over.
const maxKnownHandles = 10000

// handleCache remembers the user IDs behind @handles seen in inbound
// messages. The Bot API cannot look a user up by handle, so this is the
// primary source for ResolveIdentity.
type handleCache struct {
	mu  sync.RWMutex
	ids map[string]int64
}

func newHandleCache() *handleCache {
	return &handleCache{ids: make(map[string]int64)}
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// observe records the authors of msg and of the message it replies to.
func (c *handleCache) observe(msg message.InboundMessage) {
	c.remember(msg.Sender)
	if msg.ReplyTo != nil {
		c.remember(msg.ReplyTo.Sender)
	}
}

func (c *handleCache) remember(s message.Sender) {
	if s.Username == "" || s.ID == "" {
		return
	}
	id, err := parseUserID(s.ID)
	if err != nil {
		return
	}
	key := normalizeHandle(s.Username)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[key]; !ok && len(c.ids) >= maxKnownHandles {
		c.ids = make(map[string]int64)
	}
	c.ids[key] = id
}

func (c *handleCache) lookup(handle string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[normalizeHandle(handle)]
	return id, ok
}
