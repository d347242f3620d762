package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/flemzord/autoreply/internal/settings"
)

func (p *Processor) renderError(req Request, err error) string {
	usage := ""
	if spec, ok := Lookup(req.Name); ok {
		usage = spec.Usage
	}

	switch {
	case errors.Is(err, ErrUnknownCommand):
		return "Unknown command. Send /help for the list."
	case errors.Is(err, ErrUnauthorized):
		return "⛔ You are not allowed to use /" + req.Name + " here."
	case errors.Is(err, ErrNegativeDelay):
		return "Invalid seconds. Use a non-negative number."
	case errors.Is(err, ErrUnknownFlag):
		return "Unknown flag. Known flags: " + knownFlags() + "."
	case errors.Is(err, ErrTextTooLong):
		return fmt.Sprintf("Text too long (max %d characters).", maxTitleLen)
	case errors.Is(err, ErrUnknownUser):
		return "I don't know that user. Use their numeric ID or reply to one of their messages."
	case errors.Is(err, ErrInvalidArgument):
		return "Usage: " + usage
	case errors.Is(err, ErrIndexOutOfRange):
		return "Invalid index. Send /listreply to see the indexes."
	case errors.Is(err, ErrAlreadyExists):
		return "That user can already manage the bot here."
	case errors.Is(err, ErrNotFound):
		return "That user is not in the list."
	case errors.Is(err, ErrOwnerProtected):
		return "⛔ The owner cannot be targeted."
	case errors.Is(err, ErrWrongContext):
		return "Use this command inside the target group."
	case errors.Is(err, ErrFeatureDisabled):
		return "Title changes are off here. Enable them with /toggle namechange."
	case errors.Is(err, ErrUnsupported):
		return "This platform does not support that command."
	case errors.Is(err, ErrPlatform):
		return "The platform refused the request. Check that I am an admin of this group."
	case errors.Is(err, settings.ErrPersist):
		return "⚠️ Could not save the change, nothing was modified. Try again later."
	default:
		return "Something went wrong."
	}
}

func renderReplies(replies []string) string {
	if len(replies) == 0 {
		return "Auto replies:\nNo replies set."
	}
	var b strings.Builder
	b.WriteString("Auto replies:")
	for i, r := range replies {
		fmt.Fprintf(&b, "\n%d: %s", i, r)
	}
	return b.String()
}

func (p *Processor) renderPrivileged(ids []settings.Identity) string {
	var b strings.Builder
	b.WriteString("Privileged users:")
	for _, id := range ids {
		b.WriteString("\n- " + id.String())
		if id == p.cfg.Owner {
			b.WriteString(" (owner)")
		}
	}
	return b.String()
}

func (p *Processor) renderStatus(req Request, rec settings.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status for %s:\n", scopeLabel(req))
	fmt.Fprintf(&b, "Enabled: %s\n", yesNo(rec.Enabled))
	fmt.Fprintf(&b, "Delay: %ss\n", formatSeconds(rec.DelaySeconds))
	fmt.Fprintf(&b, "Replies: %d\n", len(rec.AutoReplies))
	fmt.Fprintf(&b, "Policy: %s", p.cfg.Policy.Name())
	for _, f := range settings.KnownFlags {
		fmt.Fprintf(&b, "\n%s: %s", f, onOff(rec.Flag(f)))
	}
	return b.String()
}

func renderHelp() string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, s := range table {
		fmt.Fprintf(&b, "\n%s - %s", s.Usage, s.Summary)
	}
	return b.String()
}

func scopeLabel(req Request) string {
	if req.Scope == settings.GlobalScope {
		return "all chats"
	}
	if req.Private {
		return "this chat"
	}
	return "this group"
}

func knownFlags() string {
	names := make([]string, len(settings.KnownFlags))
	for i, f := range settings.KnownFlags {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
