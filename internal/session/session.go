// Package session tracks multi-step conversations, one per user.
//
// A flow is a fixed list of steps (for example path, then password). Begin
// starts a flow, Advance feeds it one reply at a time and hands back the
// collected Args once every step is satisfied. Sessions that see no input
// for longer than the timeout expire.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTimeout = 120 * time.Second

var (
	ErrSessionConflict = errors.New("another command is already in progress")
	ErrNoActiveSession = errors.New("no command in progress")
	ErrEmptyInput      = errors.New("empty input")
	ErrUnknownFlow     = errors.New("unknown flow")
)

// Step is the input a session is waiting for
type Step int

const (
	StepNone Step = iota
	StepAwaitPath
	StepAwaitPassword
	StepAwaitDestination
	StepAwaitConfirm
)

func (s Step) String() string {
	switch s {
	case StepNone:
		return "NONE"
	case StepAwaitPath:
		return "AWAIT_PATH"
	case StepAwaitPassword:
		return "AWAIT_PASSWORD"
	case StepAwaitDestination:
		return "AWAIT_DESTINATION"
	case StepAwaitConfirm:
		return "AWAIT_CONFIRM"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Flow names a multi-step command
type Flow string

const (
	FlowLock   Flow = "lock"
	FlowUnlock Flow = "unlock"
	FlowRemove Flow = "remove"
	FlowCopy   Flow = "copy"
)

var flowSteps = map[Flow][]Step{
	FlowLock:   {StepAwaitPath, StepAwaitPassword},
	FlowUnlock: {StepAwaitPath, StepAwaitPassword},
	FlowRemove: {StepAwaitPath, StepAwaitConfirm},
	FlowCopy:   {StepAwaitPath, StepAwaitDestination},
}

// Args are the arguments collected over the turns of a session
type Args struct {
	Path        string
	Password    string
	Destination string
	Confirmed   bool
}

func (a Args) has(step Step) bool {
	switch step {
	case StepAwaitPath:
		return a.Path != ""
	case StepAwaitPassword:
		return a.Password != ""
	case StepAwaitDestination:
		return a.Destination != ""
	default:
		return false
	}
}

// Session is the pending state of one user
type Session struct {
	ID      string
	User    int64
	Chat    int64 // conversation the session was started in
	Flow    Flow
	Step    Step
	Args    Args
	Created time.Time
	Updated time.Time
}

// Result is the outcome of Begin or Advance. When Done is true Args holds the
// complete argument bundle and the session no longer exists; otherwise Next
// is the step now awaited.
type Result struct {
	SessionID string
	Flow      Flow
	Next      Step
	Done      bool
	Args      Args
}

// Options configures a Manager
type Options struct {
	Timeout  time.Duration    // inactivity limit; 0 selects DefaultTimeout
	Clock    func() time.Time // defaults to time.Now
	OnExpire func(Session)    // called without locks held for every expired session
}

type slot struct {
	mu   sync.Mutex
	sess *Session
}

// Manager owns every session. Each user has a slot guarded by its own mutex;
// the map of slots is guarded separately, so turns of different users never
// wait on each other.
type Manager struct {
	mu       sync.Mutex
	slots    map[int64]*slot
	timeout  time.Duration
	now      func() time.Time
	onExpire func(Session)
}

func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		slots:    make(map[int64]*slot),
		timeout:  opts.Timeout,
		now:      opts.Clock,
		onExpire: opts.OnExpire,
	}
}

// slotFor returns the slot of user, creating it on first use. Slots live as
// long as the manager; only authorized users ever reach it.
func (m *Manager) slotFor(user int64) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[user]
	if !ok {
		s = &slot{}
		m.slots[user] = s
	}
	return s
}

func (m *Manager) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.Updated) > m.timeout
}

// Begin starts flow for user in chat. Arguments already present in args (a path
// typed together with the command) skip their steps. A flow whose arguments
// are all present completes immediately without creating a session.
func (m *Manager) Begin(user, chat int64, flow Flow, args Args) (Result, error) {
	steps, ok := flowSteps[flow]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flow)
	}

	s := m.slotFor(user)
	s.mu.Lock()

	now := m.now()
	var expired *Session
	if s.sess != nil {
		if !m.expired(s.sess, now) {
			s.mu.Unlock()
			return Result{}, ErrSessionConflict
		}
		expired = s.sess
		s.sess = nil
	}

	sess := &Session{
		ID:      uuid.NewString(),
		User:    user,
		Chat:    chat,
		Flow:    flow,
		Args:    args,
		Created: now,
		Updated: now,
	}
	res := m.next(sess, steps)
	if !res.Done {
		s.sess = sess
	}
	s.mu.Unlock()

	if expired != nil {
		m.expire(*expired)
	}
	return res, nil
}

// Advance feeds one reply to the session of user
func (m *Manager) Advance(user int64, input string) (Result, error) {
	s := m.slotFor(user)
	s.mu.Lock()

	now := m.now()
	sess := s.sess
	if sess == nil {
		s.mu.Unlock()
		return Result{}, ErrNoActiveSession
	}
	if m.expired(sess, now) {
		s.sess = nil
		s.mu.Unlock()
		m.expire(*sess)
		return Result{}, ErrNoActiveSession
	}
	defer s.mu.Unlock()

	value := strings.TrimSpace(input)
	if value == "" {
		return Result{SessionID: sess.ID, Flow: sess.Flow, Next: sess.Step}, ErrEmptyInput
	}

	switch sess.Step {
	case StepAwaitPath:
		sess.Args.Path = value
	case StepAwaitPassword:
		// Passwords are taken verbatim apart from the line ending
		sess.Args.Password = strings.TrimRight(input, "\r\n")
	case StepAwaitDestination:
		sess.Args.Destination = value
	case StepAwaitConfirm:
		sess.Args.Confirmed = isYes(value)
		res := Result{SessionID: sess.ID, Flow: sess.Flow, Done: true, Args: sess.Args}
		s.sess = nil
		return res, nil
	}
	sess.Updated = now

	res := m.next(sess, flowSteps[sess.Flow])
	if res.Done {
		s.sess = nil
	}
	return res, nil
}

// next moves sess to its first unsatisfied step
func (m *Manager) next(sess *Session, steps []Step) Result {
	for _, step := range steps {
		if !sess.Args.has(step) {
			sess.Step = step
			return Result{SessionID: sess.ID, Flow: sess.Flow, Next: step}
		}
	}
	sess.Step = StepNone
	return Result{SessionID: sess.ID, Flow: sess.Flow, Done: true, Args: sess.Args}
}

// Cancel drops the session of user. It reports whether one was active.
func (m *Manager) Cancel(user int64) bool {
	s := m.slotFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.sess != nil && !m.expired(s.sess, m.now())
	s.sess = nil
	return active
}

// Active reports the step and flow user is in, without changing anything
func (m *Manager) Active(user int64) (Step, Flow, bool) {
	s := m.slotFor(user)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil || m.expired(s.sess, m.now()) {
		return StepNone, "", false
	}
	return s.sess.Step, s.sess.Flow, true
}

// Sweep removes sessions idle since before now-timeout and returns how many
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	slots := make([]*slot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, s)
	}
	m.mu.Unlock()

	var expired []Session
	for _, s := range slots {
		s.mu.Lock()
		if s.sess != nil && m.expired(s.sess, now) {
			expired = append(expired, *s.sess)
			s.sess = nil
		}
		s.mu.Unlock()
	}

	for _, sess := range expired {
		m.expire(sess)
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

func (m *Manager) expire(sess Session) {
	if m.onExpire == nil {
		return
	}
	sess.Args.Password = ""
	m.onExpire(sess)
}

func isYes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes", "confirm", "ok":
		return true
	}
	return false
}
