package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/autoreply/internal/auth"
	"github.com/flemzord/autoreply/internal/channel"
	"github.com/flemzord/autoreply/internal/settings"
	"github.com/flemzord/autoreply/pkg/message"
)

// Store is the part of *settings.Store the processor needs.
type Store interface {
	Get(ctx context.Context, key settings.ScopeKey) settings.Record
	Mutate(ctx context.Context, key settings.ScopeKey, fn func(*settings.Record) error) (settings.Record, error)
}

// AdminResolver finds the admin capability of a channel by name.
// *channel.Dispatcher satisfies it.
type AdminResolver interface {
	Admin(name string) (channel.Admin, bool)
}

// AuditEvent describes one privileged command attempt.
type AuditEvent struct {
	Command string
	Args    string
	Sender  settings.Identity
	Scope   settings.ScopeKey
	Allowed bool
	Outcome string
}

// Auditor records privileged command attempts.
type Auditor interface {
	AuditCommand(ctx context.Context, ev AuditEvent)
}

// Observer is told the outcome label and duration of every command.
type Observer func(command, outcome string, d time.Duration)

// Request is one command invocation with its context.
type Request struct {
	Name    string
	Args    string
	Sender  settings.Identity
	Scope   settings.ScopeKey
	Private bool
	Channel string
	Chat    message.Chat
	// ReplyTo is the author of the replied-to message, or zero.
	ReplyTo settings.Identity
}

// Result is the outcome of a successful command.
type Result struct {
	Command Command
	Reply   string
	Record  settings.Record
}

// Config wires a Processor.
type Config struct {
	Store   Store
	Policy  auth.Policy
	Owner   settings.Identity
	Admins  AdminResolver
	Auditor Auditor
	Observe Observer
	// PerChatScopes rejects scope-bound commands in private chats.
	PerChatScopes bool
	Logger        *slog.Logger
}

// Processor executes commands against the store.
type Processor struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New validates cfg and returns a Processor.
func New(cfg Config) (*Processor, error) {
	var errs []error
	if cfg.Store == nil {
		errs = append(errs, errors.New("command: store is required"))
	}
	if cfg.Policy == nil {
		errs = append(errs, errors.New("command: policy is required"))
	}
	if cfg.Owner <= 0 {
		errs = append(errs, errors.New("command: owner must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:    cfg,
		logger: logger.With("component", "command"),
		tracer: otel.Tracer("github.com/flemzord/autoreply/internal/command"),
	}, nil
}

// Execute runs req: parse, authorize, check context, apply.
func (p *Processor) Execute(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "command.execute", trace.WithAttributes(
		attribute.String("command.name", req.Name),
		attribute.String("command.scope", string(req.Scope)),
	))
	defer func() {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("command.outcome", outcome))
		if err != nil && !isRejection(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		if p.cfg.Observe != nil {
			p.cfg.Observe(req.Name, outcome, time.Since(start))
		}
	}()

	spec, cmd, err := Parse(req.Name, req.Args)
	if err != nil {
		return Result{}, err
	}

	if spec.Privileged {
		allowed := p.cfg.Policy.IsAuthorized(ctx, req.Sender, req.Scope)
		if !allowed {
			p.audit(ctx, req, false, ErrUnauthorized)
			return Result{}, ErrUnauthorized
		}
		defer func() { p.audit(ctx, req, true, err) }()
	}

	if spec.GroupOnly && !req.Chat.IsGroup() {
		return Result{}, ErrWrongContext
	}
	if spec.ScopeBound && req.Private && p.cfg.PerChatScopes {
		return Result{}, ErrWrongContext
	}

	return p.apply(ctx, cmd, req)
}

// Handle executes req and renders the outcome, success or rejection, as the
// reply text for the caller.
func (p *Processor) Handle(ctx context.Context, req Request) string {
	res, err := p.Execute(ctx, req)
	if err == nil {
		return res.Reply
	}

	switch {
	case errors.Is(err, settings.ErrPersist):
		p.logger.Error("command not saved", "command", req.Name, "scope", string(req.Scope), "error", err)
	case errors.Is(err, ErrPlatform):
		p.logger.Warn("platform call failed", "command", req.Name, "scope", string(req.Scope), "error", err)
	case isRejection(err):
		p.logger.Debug("command rejected", "command", req.Name, "sender", req.Sender.String(), "reason", Outcome(err))
	default:
		p.logger.Error("command failed", "command", req.Name, "error", err)
	}
	return p.renderError(req, err)
}

// mutate applies fn to the request's scope. The sender's authorization is
// checked again against the record being changed, under the store lock.
func (p *Processor) mutate(ctx context.Context, req Request, fn func(*settings.Record) error) (settings.Record, error) {
	recheck, _ := p.cfg.Policy.(auth.RecordAuthorizer)
	return p.cfg.Store.Mutate(ctx, req.Scope, func(r *settings.Record) error {
		if recheck != nil && !recheck.AuthorizedBy(*r, req.Sender) {
			return ErrUnauthorized
		}
		return fn(r)
	})
}

func (p *Processor) apply(ctx context.Context, cmd Command, req Request) (Result, error) {
	switch c := cmd.(type) {
	case SetEnabled:
		rec, err := p.mutate(ctx, req, func(r *settings.Record) error {
			r.Enabled = c.Enabled
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		reply := "✅ Bot features enabled for " + scopeLabel(req) + "."
		if !c.Enabled {
			reply = "⛔ Bot features disabled for " + scopeLabel(req) + "."
		}
		return Result{Command: c, Record: rec, Reply: reply}, nil

	case SetDelay:
		rec, err := p.mutate(ctx, req, func(r *settings.Record) error {
			r.DelaySeconds = c.Seconds
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Command: c, Record: rec, Reply: fmt.Sprintf("⏱️ Reply delay set to %s seconds for %s.", formatSeconds(c.Seconds), scopeLabel(req))}, nil

	case AddReply:
		rec, err := p.mutate(ctx, req, func(r *settings.Record) error {
			r.AutoReplies = append(r.AutoReplies, c.Text)
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Command: c, Record: rec, Reply: fmt.Sprintf("✅ Auto-reply added at index %d.", len(rec.AutoReplies)-1)}, nil

	case RemoveReply:
		var removed string
		rec, err := p.mutate(ctx, req, func(r *settings.Record) error {
			if c.Index < 0 || c.Index >= len(r.AutoReplies) {
				return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, c.Index, len(r.AutoReplies))
			}
			removed = r.AutoReplies[c.Index]
			r.AutoReplies = slices.Delete(r.AutoReplies, c.Index, c.Index+1)
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Command: c, Record: rec, Reply: "Removed reply: " + removed}, nil

	case ListReplies:
		rec := p.cfg.Store.Get(ctx, req.Scope)
		return Result{Command: c, Record: rec, Reply: renderReplies(rec.AutoReplies)}, nil

	case AddPrivileged:
		id, err := p.resolve(ctx, req, c.Target)
		if err != nil {
			return Result{}, err
		}
		rec, err := p.mutate(ctx, req, func(r *settings.Record) error {
			if r.IsPrivileged(id) {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
			}
			r.PrivilegedIDs = append(r.PrivilegedIDs, id)
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Command: c, Record: rec, Reply: fmt.Sprintf("✅ %s can now manage the bot in %s.", id, scopeLabel(req))}, nil

	case RemovePrivileged:
		id, err := p.resolve(ctx, req, c.Target)
		if err != nil {
			return Result{}, err
		}
		if id == p.cfg.Owner {
			return Result{}, ErrOwnerProtected
		}
		rec, err := p.mutate(ctx, req, func(r *settings.Record) error {
			i, found := slices.BinarySearch(r.PrivilegedIDs, id)
			if !found {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			r.PrivilegedIDs = slices.Delete(r.PrivilegedIDs, i, i+1)
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Command: c, Record: rec, Reply: fmt.Sprintf("✅ %s can no longer manage the bot in %s.", id, scopeLabel(req))}, nil

	case ListPrivileged:
		rec := p.cfg.Store.Get(ctx, req.Scope)
		return Result{Command: c, Record: rec, Reply: p.renderPrivileged(rec.PrivilegedIDs)}, nil

	case ToggleFlag:
		rec, err := p.mutate(ctx, req, func(r *settings.Record) error {
			if r.Flags == nil {
				r.Flags = make(map[settings.Flag]bool)
			}
			r.Flags[c.Flag] = !r.Flags[c.Flag]
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Command: c, Record: rec, Reply: fmt.Sprintf("Flag %s is now %s.", c.Flag, onOff(rec.Flag(c.Flag)))}, nil

	case SetTitle:
		if !p.cfg.Store.Get(ctx, req.Scope).Flag(settings.FlagNameChange) {
			return Result{}, ErrFeatureDisabled
		}
		admin, err := p.admin(req)
		if err != nil {
			return Result{}, err
		}
		if err := admin.SetTitle(ctx, req.Chat, c.Title); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrPlatform, err)
		}
		return Result{Command: c, Reply: "✅ Group title updated."}, nil

	case CreateInvite:
		admin, err := p.admin(req)
		if err != nil {
			return Result{}, err
		}
		link, err := admin.CreateInviteLink(ctx, req.Chat)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrPlatform, err)
		}
		return Result{Command: c, Reply: "🔗 Invite link: " + link}, nil

	case Ban:
		id, err := p.resolve(ctx, req, c.Target)
		if err != nil {
			return Result{}, err
		}
		if id == p.cfg.Owner {
			return Result{}, ErrOwnerProtected
		}
		admin, err := p.admin(req)
		if err != nil {
			return Result{}, err
		}
		if err := admin.BanMember(ctx, req.Chat, int64(id)); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrPlatform, err)
		}
		return Result{Command: c, Reply: fmt.Sprintf("🔨 Banned %s.", id)}, nil

	case Start:
		return Result{Command: c, Reply: "Bot online. Owner can use /enable in a group to activate features."}, nil

	case Help:
		return Result{Command: c, Reply: renderHelp()}, nil

	case Status:
		rec := p.cfg.Store.Get(ctx, req.Scope)
		return Result{Command: c, Record: rec, Reply: p.renderStatus(req, rec)}, nil
	}
	return Result{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}

// resolve turns an IdentityRef into a concrete identity. It runs after
// authorization so that platform lookups are never made for strangers.
func (p *Processor) resolve(ctx context.Context, req Request, ref IdentityRef) (settings.Identity, error) {
	switch {
	case ref.FromReply:
		if req.ReplyTo <= 0 {
			return 0, fmt.Errorf("%w: pass a user ID or reply to the user's message", ErrMalformedIdentity)
		}
		return req.ReplyTo, nil
	case ref.Handle != "":
		admin, err := p.admin(req)
		if err != nil {
			return 0, err
		}
		id, err := admin.ResolveIdentity(ctx, ref.Handle)
		if err != nil {
			if errors.Is(err, channel.ErrIdentityNotFound) {
				return 0, fmt.Errorf("%w: %s", ErrUnknownUser, ref.Handle)
			}
			return 0, fmt.Errorf("%w: %w", ErrPlatform, err)
		}
		if id <= 0 {
			return 0, fmt.Errorf("%w: %s", ErrMalformedIdentity, ref.Handle)
		}
		return settings.Identity(id), nil
	default:
		return ref.ID, nil
	}
}

func (p *Processor) admin(req Request) (channel.Admin, error) {
	if p.cfg.Admins == nil {
		return nil, ErrUnsupported
	}
	a, ok := p.cfg.Admins.Admin(req.Channel)
	if !ok {
		return nil, ErrUnsupported
	}
	return a, nil
}

func (p *Processor) audit(ctx context.Context, req Request, allowed bool, err error) {
	if p.cfg.Auditor == nil {
		return
	}
	p.cfg.Auditor.AuditCommand(ctx, AuditEvent{
		Command: req.Name,
		Args:    req.Args,
		Sender:  req.Sender,
		Scope:   req.Scope,
		Allowed: allowed,
		Outcome: Outcome(err),
	})
}

// Outcome returns a short label for err, used in metrics, traces and audit
// entries. A nil error is "ok".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrWrongContext):
		return "wrong_context"
	case errors.Is(err, ErrOwnerProtected):
		return "owner_protected"
	case errors.Is(err, ErrFeatureDisabled):
		return "feature_disabled"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrPlatform):
		return "platform_error"
	case errors.Is(err, settings.ErrPersist):
		return "persist_failed"
	default:
		return "error"
	}
}

func isRejection(err error) bool {
	switch Outcome(err) {
	case "platform_error", "persist_failed", "error":
		return false
	}
	return true
}
