// Package router is the single entry point for inbound chat triggers.
//
// Every trigger passes the authorization gate first. Explicit cancel comes
// next, then continuation of an active session, then the static trigger
// table. Vault operations run in background goroutines and report through
// the Notifier so the dispatch loop stays responsive.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/illarion/lockbot/internal/device"
	"github.com/illarion/lockbot/internal/ratelimit"
	"github.com/illarion/lockbot/internal/session"
	"github.com/illarion/lockbot/internal/storage"
)

var ErrUnauthorized = errors.New("unauthorized sender")

// Kind tells how a trigger arrived
type Kind int

const (
	KindCommand Kind = iota // slash command or known keyword
	KindButton              // inline keyboard callback
	KindText                // free text
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindButton:
		return "button"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Trigger is one inbound event from the chat transport
type Trigger struct {
	Sender    int64
	Chat      int64
	Kind      Kind
	Name      string   // command keyword or button id, lower case
	Args      []string // arguments after the command keyword
	Raw       string   // untouched payload, used for session continuation
	MessageID int
}

// Button is one inline keyboard button
type Button struct {
	Label string
	ID    string
}

// Response is what the transport sends back
type Response struct {
	Text        string
	Buttons     [][]Button
	DeleteInput bool // the trigger message carried a secret and should be deleted
}

// Notifier delivers results of background work
type Notifier interface {
	Notify(ctx context.Context, chat int64, resp Response) error
}

// Vault is the subset of the vault engine the router drives
type Vault interface {
	Lock(ctx context.Context, path string, password []byte) (*storage.Entry, error)
	Unlock(ctx context.Context, lockedPath string, password []byte) (string, error)
	List() ([]storage.Entry, error)
}

// Files removes and copies plain files
type Files interface {
	Remove(path string) (string, error)
	Copy(ctx context.Context, src, dst string) (string, error)
}

// Device queries and drives the phone
type Device interface {
	Battery(ctx context.Context) (*device.Battery, error)
	Vibrate(ctx context.Context, d time.Duration) error
	Torch(ctx context.Context, on bool) error
	WiFi(ctx context.Context) (*device.WiFi, error)
}

// Store keeps the audit log and the active flag
type Store interface {
	AppendAudit(rec storage.AuditRecord) error
	RecentAudit(n int) ([]storage.AuditRecord, error)
	SetActive(active bool) error
	IsActive() (bool, error)
}

// Config wires a Router to its collaborators
type Config struct {
	Owner    int64
	Vault    Vault
	Files    Files
	Device   Device
	Store    Store
	Sessions *session.Manager
	Limiter  *ratelimit.Limiter
	Notifier Notifier
	Logger   *zap.Logger
}

// Handler produces the immediate response to a trigger
type Handler func(ctx context.Context, t Trigger) Response

// Descriptor binds a trigger to its handler
type Descriptor struct {
	Kind          Kind
	Name          string
	Handler       Handler
	WhileInactive bool // usable while the bot is switched off
	Description   string
}

type key struct {
	kind Kind
	name string
}

// Router dispatches triggers
type Router struct {
	owner    int64
	vault    Vault
	files    Files
	device   Device
	store    Store
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	notifier Notifier
	log      *zap.Logger

	table   map[key]Descriptor
	started time.Time

	wg       sync.WaitGroup
	inflight sync.Map // operation id -> description
}

func New(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(ratelimit.DefaultPerMinute, ratelimit.DefaultBurst, cfg.Logger)
	}
	r := &Router{
		owner:    cfg.Owner,
		vault:    cfg.Vault,
		files:    cfg.Files,
		device:   cfg.Device,
		store:    cfg.Store,
		sessions: cfg.Sessions,
		limiter:  cfg.Limiter,
		notifier: cfg.Notifier,
		log:      cfg.Logger.Named("router"),
		started:  time.Now(),
	}
	r.table = r.buildTable()
	return r
}

// SetNotifier attaches the transport once it exists
func (r *Router) SetNotifier(n Notifier) {
	r.notifier = n
}

// Wait blocks until every background operation has finished
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) authorize(t Trigger) error {
	if t.Sender != r.owner {
		return fmt.Errorf("%w: %d", ErrUnauthorized, t.Sender)
	}
	return nil
}

// Handle processes one trigger and returns the immediate response. It never
// panics; failures are turned into a user-facing message.
func (r *Router) Handle(ctx context.Context, t Trigger) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panic", zap.Stringer("kind", t.Kind), zap.String("name", t.Name), zap.Any("panic", p))
			resp = Response{Text: msgInternal}
		}
	}()

	if err := r.authorize(t); err != nil {
		r.log.Warn("rejected trigger", zap.Error(err), zap.Stringer("kind", t.Kind))
		return Response{Text: msgUnauthorized}
	}

	if t.Kind != KindText && t.Name == "cancel" {
		return r.handleCancel(ctx, t)
	}

	if step, _, ok := r.sessions.Active(t.Sender); ok {
		return r.continueSession(ctx, t, step)
	}

	if t.Kind == KindText {
		t = r.promote(t)
	}

	desc, ok := r.table[key{t.Kind, t.Name}]
	if !ok {
		r.log.Debug("unknown trigger", zap.Stringer("kind", t.Kind), zap.String("name", t.Name))
		return Response{Text: msgUnknown}
	}

	if !desc.WhileInactive && !r.active() {
		return Response{Text: msgInactive}
	}

	return desc.Handler(ctx, t)
}

// promote turns free text whose first word is a known command into a command
func (r *Router) promote(t Trigger) Trigger {
	name, args := splitCommand(t.Raw)
	if name == "" {
		return t
	}
	if _, ok := r.table[key{KindCommand, name}]; !ok {
		return t
	}
	t.Kind = KindCommand
	t.Name = name
	t.Args = args
	return t
}

func (r *Router) active() bool {
	active, err := r.store.IsActive()
	if err != nil {
		r.log.Error("failed to read active flag", zap.Error(err))
		return true
	}
	return active
}

func (r *Router) handleCancel(_ context.Context, t Trigger) Response {
	if r.sessions.Cancel(t.Sender) {
		return Response{Text: msgCancelled, Buttons: mainMenu}
	}
	return Response{Text: msgNothingToCancel}
}

// continueSession feeds the raw payload to the active session
func (r *Router) continueSession(ctx context.Context, t Trigger, step session.Step) Response {
	secret := step == session.StepAwaitPassword

	res, err := r.sessions.Advance(t.Sender, t.Raw)
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		return Response{Text: prompt(res.Flow, res.Next), DeleteInput: secret}
	case err != nil:
		return Response{Text: userMessage(err), DeleteInput: secret}
	}

	if !res.Done {
		return Response{Text: prompt(res.Flow, res.Next), Buttons: promptButtons(res.Next), DeleteInput: secret}
	}
	resp := r.complete(ctx, t, res)
	resp.DeleteInput = resp.DeleteInput || secret
	return resp
}

// begin starts a flow for the sender, or completes it at once when the
// command carried every argument
func (r *Router) begin(ctx context.Context, t Trigger, flow session.Flow, args session.Args) Response {
	res, err := r.sessions.Begin(t.Sender, t.Chat, flow, args)
	if err != nil {
		return Response{Text: userMessage(err)}
	}
	if res.Done {
		return r.complete(ctx, t, res)
	}
	return Response{Text: prompt(res.Flow, res.Next), Buttons: promptButtons(res.Next)}
}

// complete runs a flow whose arguments are all collected
func (r *Router) complete(ctx context.Context, t Trigger, res session.Result) Response {
	args := res.Args
	switch res.Flow {
	case session.FlowLock:
		r.background(ctx, t, "lock", args.Path, func(ctx context.Context) (string, error) {
			entry, err := r.vault.Lock(ctx, args.Path, []byte(args.Password))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(msgLocked, entry.LockedPath), nil
		})
		return Response{Text: fmt.Sprintf(msgLocking, args.Path), DeleteInput: true}

	case session.FlowUnlock:
		if !r.limiter.Allow(t.Sender) {
			r.audit(t.Sender, "unlock", args.Path, "rate limited")
			return Response{Text: msgTooManyAttempts, DeleteInput: true}
		}
		r.background(ctx, t, "unlock", args.Path, func(ctx context.Context) (string, error) {
			original, err := r.vault.Unlock(ctx, args.Path, []byte(args.Password))
			if err != nil {
				return "", err
			}
			r.limiter.Reset(t.Sender)
			return fmt.Sprintf(msgUnlocked, original), nil
		})
		return Response{Text: fmt.Sprintf(msgUnlocking, args.Path), DeleteInput: true}

	case session.FlowRemove:
		if !args.Confirmed {
			return Response{Text: msgRemoveAborted, Buttons: mainMenu}
		}
		removed, err := r.files.Remove(args.Path)
		if err != nil {
			r.audit(t.Sender, "remove", args.Path, outcome(err))
			r.log.Info("remove failed", zap.String("path", args.Path), zap.Error(err))
			return Response{Text: userMessage(err)}
		}
		r.audit(t.Sender, "remove", removed, "ok")
		return Response{Text: fmt.Sprintf(msgRemoved, removed), Buttons: mainMenu}

	case session.FlowCopy:
		r.background(ctx, t, "copy", args.Path, func(ctx context.Context) (string, error) {
			dst, err := r.files.Copy(ctx, args.Path, args.Destination)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf(msgCopied, args.Path, dst), nil
		})
		return Response{Text: fmt.Sprintf(msgCopying, args.Path)}
	}

	return Response{Text: msgUnknown}
}

// background runs op detached from the dispatch loop and from the caller's
// cancellation. The result is audited and pushed through the Notifier.
func (r *Router) background(ctx context.Context, t Trigger, action, target string, op func(context.Context) (string, error)) {
	id := uuid.NewString()
	r.inflight.Store(id, action+" "+target)
	bg := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inflight.Delete(id)

		var resp Response
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("background panic", zap.String("action", action), zap.Any("panic", p))
					resp = Response{Text: msgInternal}
				}
			}()
			text, err := op(bg)
			if err != nil {
				r.log.Info(action+" failed", zap.String("op", id), zap.String("target", target), zap.Error(err))
				r.audit(t.Sender, action, target, outcome(err))
				resp = Response{Text: userMessage(err)}
				return
			}
			r.audit(t.Sender, action, target, "ok")
			resp = Response{Text: text, Buttons: mainMenu}
		}()

		r.notify(bg, t.Chat, resp)
	}()
}

func (r *Router) notify(ctx context.Context, chat int64, resp Response) {
	if r.notifier == nil {
		r.log.Warn("no notifier attached, dropping result", zap.Int64("chat", chat))
		return
	}
	if err := r.notifier.Notify(ctx, chat, resp); err != nil {
		r.log.Error("failed to deliver result", zap.Int64("chat", chat), zap.Error(err))
	}
}

// SessionExpired tells the owner, in the chat the command was started from,
// that it timed out
func (r *Router) SessionExpired(s session.Session) {
	r.log.Debug("session expired", zap.String("session", s.ID), zap.String("flow", string(s.Flow)))
	chat := s.Chat
	if chat == 0 {
		chat = s.User
	}
	r.notify(context.Background(), chat, Response{Text: fmt.Sprintf(msgSessionExpired, s.Flow)})
}

func (r *Router) audit(user int64, action, target, result string) {
	rec := storage.AuditRecord{
		ID:      uuid.NewString(),
		Time:    time.Now(),
		User:    user,
		Action:  action,
		Target:  target,
		Outcome: result,
	}
	if err := r.store.AppendAudit(rec); err != nil {
		r.log.Error("failed to append audit record", zap.Error(err))
	}
}

func (r *Router) inflightCount() int {
	n := 0
	r.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
