// Package telegram implements the Telegram Bot API channel.
//
// It bridges Telegram text messages to the platform-agnostic message model:
//
//   - Inbound text and captions, with the replied-to message and its author
//   - Outbound plain text, split at the 4096-byte Bot API limit
//   - Two delivery modes: long-polling (default) and webhook via the gateway
//   - Chat administration: title changes, invite links, bans and handle lookup
//
// The module registers itself as "channel.telegram" via init() and implements
// the module lifecycle: Configure → Provision → Validate → Start → Stop.
//
// No external Telegram library is used: the module talks to the Bot API via
// raw net/http + encoding/json.
package telegram
