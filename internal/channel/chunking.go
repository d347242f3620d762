package channel

import (
	"strings"
	"unicode/utf8"

	"github.com/flemzord/autoreply/pkg/message"
)

// SplitMessage splits msg into messages whose text is at most maxLen bytes,
// breaking at line boundaries where possible and never inside a UTF-8
// sequence. Only the first part keeps ReplyToID. A maxLen <= 0 disables
// splitting.
func SplitMessage(msg message.OutboundMessage, maxLen int) []message.OutboundMessage {
	if maxLen <= 0 || len(msg.Text) <= maxLen {
		return []message.OutboundMessage{msg}
	}

	chunks := splitText(msg.Text, maxLen)
	out := make([]message.OutboundMessage, 0, len(chunks))
	for i, chunk := range chunks {
		part := msg
		part.Text = chunk
		if i > 0 {
			part.ReplyToID = ""
		}
		out = append(out, part)
	}
	return out
}

func splitText(text string, maxLen int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if current.Len()+len(line) <= maxLen {
			current.WriteString(line)
			continue
		}
		flush()
		if len(line) <= maxLen {
			current.WriteString(line)
			continue
		}
		parts := forceSplit(strings.TrimRight(line, "\n"), maxLen)
		chunks = append(chunks, parts[:len(parts)-1]...)
		current.WriteString(parts[len(parts)-1])
	}
	flush()
	return chunks
}

// forceSplit cuts one long line into pieces of at most maxLen bytes, backing
// off to the previous rune boundary.
func forceSplit(line string, maxLen int) []string {
	var parts []string
	for len(line) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		parts = append(parts, line[:cut])
		line = line[cut:]
	}
	return append(parts, line)
}
