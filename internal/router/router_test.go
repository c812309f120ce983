package router

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/illarion/lockbot/internal/crypto"
	"github.com/illarion/lockbot/internal/device"
	"github.com/illarion/lockbot/internal/files"
	"github.com/illarion/lockbot/internal/ratelimit"
	"github.com/illarion/lockbot/internal/security"
	"github.com/illarion/lockbot/internal/session"
	"github.com/illarion/lockbot/internal/storage"
	"github.com/illarion/lockbot/internal/vault"
)

const (
	owner    int64 = 1001
	stranger int64 = 2002
)

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []Response
	chats []int64
}

func (f *fakeNotifier) Notify(_ context.Context, chat int64, resp Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, resp)
	f.chats = append(f.chats, chat)
	return nil
}

func (f *fakeNotifier) lastChat(t *testing.T) int64 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.chats, "no notification delivered")
	return f.chats[len(f.chats)-1]
}

func (f *fakeNotifier) last(t *testing.T) Response {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no notification delivered")
	return f.sent[len(f.sent)-1]
}

type fakeDevice struct {
	battery *device.Battery
	err     error
	panics  bool
}

func (f *fakeDevice) Battery(context.Context) (*device.Battery, error) {
	if f.panics {
		panic("boom")
	}
	return f.battery, f.err
}

func (f *fakeDevice) Vibrate(context.Context, time.Duration) error { return f.err }
func (f *fakeDevice) Torch(context.Context, bool) error            { return f.err }
func (f *fakeDevice) WiFi(context.Context) (*device.WiFi, error) {
	return &device.WiFi{SSID: "home", IP: "10.0.0.2", State: "COMPLETED"}, f.err
}

type fixture struct {
	router   *Router
	root     string
	store    *storage.Memory
	notifier *fakeNotifier
	device   *fakeDevice
	sessions *session.Manager
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	validator, err := security.New([]string{t.TempDir()})
	require.NoError(t, err)
	root := validator.Roots()[0]

	store := storage.NewMemory()
	engine := vault.New(store, vault.Options{Iterations: crypto.MinIters, Resolver: validator})
	sessions := session.NewManager(session.Options{})
	notifier := &fakeNotifier{}
	dev := &fakeDevice{battery: &device.Battery{Percentage: 50, Status: "CHARGING", Health: "GOOD"}}

	r := New(Config{
		Owner:    owner,
		Vault:    engine,
		Files:    files.New(validator, vault.Suffix, nil),
		Device:   dev,
		Store:    store,
		Sessions: sessions,
		Limiter:  limiter,
		Notifier: notifier,
	})
	t.Cleanup(r.Wait)

	return &fixture{router: r, root: root, store: store, notifier: notifier, device: dev, sessions: sessions}
}

func (f *fixture) send(text string) Response {
	return f.router.Handle(context.Background(), ParseText(owner, owner, 1, text))
}

func (f *fixture) press(id string) Response {
	return f.router.Handle(context.Background(), ParseButton(owner, owner, 1, id))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLockUnlockConversation(t *testing.T) {
	f := newFixture(t, nil)
	notes := filepath.Join(f.root, "docs", "notes.txt")
	writeFile(t, notes, "meeting at noon")

	resp := f.send("lock " + notes)
	require.Equal(t, prompt(session.FlowLock, session.StepAwaitPassword), resp.Text)
	require.False(t, resp.DeleteInput)

	resp = f.send("secret123")
	require.True(t, resp.DeleteInput)
	require.Contains(t, resp.Text, "Locking")
	f.router.Wait()

	require.Contains(t, f.notifier.last(t).Text, notes+vault.Suffix)
	require.NoFileExists(t, notes)
	require.FileExists(t, notes+vault.Suffix)
	entries, _ := f.store.List()
	require.Len(t, entries, 1)

	// Wrong password
	resp = f.send("unlock " + notes + vault.Suffix)
	require.Equal(t, prompt(session.FlowUnlock, session.StepAwaitPassword), resp.Text)
	resp = f.send("secret124")
	require.True(t, resp.DeleteInput)
	f.router.Wait()

	require.Equal(t, "❌ Wrong password.", f.notifier.last(t).Text)
	require.FileExists(t, notes+vault.Suffix)
	require.NoFileExists(t, notes)

	// Right password
	f.send("/unlock " + notes + vault.Suffix)
	f.send("secret123")
	f.router.Wait()

	require.Contains(t, f.notifier.last(t).Text, "Restored")
	data, err := os.ReadFile(notes)
	require.NoError(t, err)
	require.Equal(t, "meeting at noon", string(data))
	entries, _ = f.store.List()
	require.Empty(t, entries)

	records, _ := f.store.RecentAudit(10)
	require.Len(t, records, 3)
	require.Equal(t, "ok", records[0].Outcome)
	require.Equal(t, vault.ErrWrongPassword.Error(), records[1].Outcome)
	for _, rec := range records {
		require.NotContains(t, rec.Target+rec.Outcome, "secret")
	}
}

func TestLockDirectoryStepByStep(t *testing.T) {
	f := newFixture(t, nil)
	project := filepath.Join(f.root, "docs", "project")
	writeFile(t, filepath.Join(project, "a.txt"), "a")
	writeFile(t, filepath.Join(project, "sub", "b.txt"), "b")

	resp := f.press("lock")
	require.Equal(t, prompt(session.FlowLock, session.StepAwaitPath), resp.Text)
	resp = f.send(project + "/")
	require.Equal(t, prompt(session.FlowLock, session.StepAwaitPassword), resp.Text)
	f.send("pw")
	f.router.Wait()

	require.NoDirExists(t, project)
	require.FileExists(t, filepath.Join(f.root, "docs", "project.locked"))

	f.send("/unlock docs/project.locked")
	f.send("pw")
	f.router.Wait()

	data, err := os.ReadFile(filepath.Join(project, "sub", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "b", string(data))
}

func TestUnauthorizedRejectedEverywhere(t *testing.T) {
	f := newFixture(t, nil)
	target := filepath.Join(f.root, "a.txt")
	writeFile(t, target, "a")

	// Owner has a session waiting for a password
	f.send("lock " + target)

	for _, trig := range []Trigger{
		ParseText(stranger, stranger, 1, "/lock "+target),
		ParseText(stranger, stranger, 1, "hijack"),
		ParseButton(stranger, stranger, 1, "toggle"),
		ParseText(stranger, stranger, 1, "/cancel"),
	} {
		resp := f.router.Handle(context.Background(), trig)
		require.Equal(t, msgUnauthorized, resp.Text, "trigger %+v", trig)
	}

	// Owner's pending session is untouched
	step, flow, ok := f.sessions.Active(owner)
	require.True(t, ok)
	require.Equal(t, session.StepAwaitPassword, step)
	require.Equal(t, session.FlowLock, flow)

	// Still rejected while the bot is inactive
	f.sessions.Cancel(owner)
	require.NoError(t, f.store.SetActive(false))
	resp := f.router.Handle(context.Background(), ParseText(stranger, stranger, 1, "/status"))
	require.Equal(t, msgUnauthorized, resp.Text)

	records, _ := f.store.RecentAudit(10)
	require.Empty(t, records)
	require.FileExists(t, target)
}

func TestSessionContinuationBeatsCommands(t *testing.T) {
	f := newFixture(t, nil)

	f.press("lock")
	// A command-looking payload is taken as the path
	resp := f.send("/status")
	require.Equal(t, prompt(session.FlowLock, session.StepAwaitPassword), resp.Text)

	resp = f.send("/cancel")
	require.Equal(t, msgCancelled, resp.Text)
	resp = f.send("/cancel")
	require.Equal(t, msgNothingToCancel, resp.Text)
}

func TestConflictingCommandNeedsCancel(t *testing.T) {
	f := newFixture(t, nil)

	f.press("unlock")
	// Buttons are session input too while a session waits
	resp := f.press("lock")
	require.Equal(t, prompt(session.FlowUnlock, session.StepAwaitPassword), resp.Text)

	resp = f.press("cancel")
	require.Equal(t, msgCancelled, resp.Text)
}

func TestUnknownTriggers(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, msgUnknown, f.send("/format c:").Text)
	require.Equal(t, msgUnknown, f.send("hello there").Text)
	require.Equal(t, msgUnknown, f.press("self_destruct").Text)
	require.Equal(t, msgUnknown, f.send("").Text)
}

func TestInactiveBot(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.send("/toggle")
	require.Contains(t, resp.Text, "inactive")

	require.Equal(t, msgInactive, f.send("/lock").Text)
	require.Equal(t, msgInactive, f.press("battery").Text)
	require.Contains(t, f.send("/status").Text, "State: inactive")
	require.Contains(t, f.send("/help").Text, "/lock")

	resp = f.press("toggle")
	require.Contains(t, resp.Text, "active")
	require.Equal(t, prompt(session.FlowLock, session.StepAwaitPath), f.send("/lock").Text)
}

func TestUnlockRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.New(1, 1, nil))

	f.send("/unlock missing.locked")
	f.send("pw1")
	f.router.Wait()
	require.Equal(t, "❌ Nothing is locked at that path.", f.notifier.last(t).Text)

	f.send("/unlock missing.locked")
	resp := f.send("pw2")
	require.Equal(t, msgTooManyAttempts, resp.Text)
	require.True(t, resp.DeleteInput)
}

func TestRemoveFlow(t *testing.T) {
	f := newFixture(t, nil)
	target := filepath.Join(f.root, "junk.txt")
	writeFile(t, target, "junk")

	resp := f.send("/rm junk.txt")
	require.Equal(t, prompts[session.StepAwaitConfirm], resp.Text)
	require.Equal(t, "yes", resp.Buttons[0][0].ID)

	resp = f.press("no")
	require.Equal(t, msgRemoveAborted, resp.Text)
	require.FileExists(t, target)

	f.send("/rm junk.txt")
	resp = f.press("yes")
	require.Contains(t, resp.Text, "Removed")
	require.NoFileExists(t, target)
}

func TestRemoveRefusesArtifact(t *testing.T) {
	f := newFixture(t, nil)
	writeFile(t, filepath.Join(f.root, "a.locked"), "sealed")

	f.send("/rm a.locked")
	resp := f.send("yes")
	require.Equal(t, "❌ Locked files can only be handled with /unlock.", resp.Text)
}

func TestCopyFlow(t *testing.T) {
	f := newFixture(t, nil)
	writeFile(t, filepath.Join(f.root, "a.txt"), "a")

	resp := f.send(`/cp a.txt "b c.txt"`)
	require.Contains(t, resp.Text, "Copying")
	f.router.Wait()

	require.Contains(t, f.notifier.last(t).Text, "Copied")
	require.FileExists(t, filepath.Join(f.root, "b c.txt"))
}

func TestOutsideRootsRefused(t *testing.T) {
	f := newFixture(t, nil)

	f.send("/lock /etc/passwd")
	f.send("pw")
	f.router.Wait()
	require.Equal(t, "❌ That path is not allowed.", f.notifier.last(t).Text)
}

func TestDeviceHandlers(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.press("battery")
	require.Contains(t, resp.Text, "50%")
	require.Contains(t, resp.Text, "CHARGING")

	require.Contains(t, f.send("/wifi").Text, "home")
	require.Equal(t, "🔦 Torch on.", f.send("/torch on").Text)
	require.Equal(t, "🔦 Torch off.", f.press("torch_off").Text)
	require.Contains(t, f.send("/torch maybe").Text, "Usage")
	require.Equal(t, "📳 Vibrated.", f.send("/vibrate 1s").Text)

	f.device.err = device.ErrUnavailable
	require.Contains(t, f.send("/vibrate").Text, "termux-api")
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t, nil)
	f.device.panics = true

	resp := f.send("/battery")
	require.Equal(t, msgInternal, resp.Text)
}

func TestLockedAndLogs(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, msgNoLocked, f.press("locked").Text)
	require.Equal(t, msgNoLogs, f.send("/logs").Text)

	writeFile(t, filepath.Join(f.root, "a.txt"), "a")
	f.send("/lock a.txt")
	f.send("pw")
	f.router.Wait()

	require.Contains(t, f.send("/locked").Text, "a.txt.locked")
	logs := f.send("/logs").Text
	require.Contains(t, logs, "lock a.txt: ok")
}

func TestSessionExpiredNotifies(t *testing.T) {
	f := newFixture(t, nil)
	f.router.SessionExpired(session.Session{User: owner, Chat: owner, Flow: session.FlowUnlock})
	require.Contains(t, f.notifier.last(t).Text, "unlock")
	require.Equal(t, owner, f.notifier.lastChat(t))
}

func TestSessionExpiredNotifiesGroupChat(t *testing.T) {
	f := newFixture(t, nil)
	const group int64 = -100500

	resp := f.router.Handle(context.Background(), ParseText(owner, group, 7, "/unlock"))
	require.NotEqual(t, msgUnauthorized, resp.Text)

	f.router.SessionExpired(session.Session{User: owner, Chat: group, Flow: session.FlowUnlock})
	require.Equal(t, group, f.notifier.lastChat(t))
}

func TestUserMessageHidesDetail(t *testing.T) {
	err := errors.Join(vault.ErrIO, errors.New("open /secret/path: permission denied"))
	msg := userMessage(err)
	require.Equal(t, msgInternal, msg)
	require.False(t, strings.Contains(msg, "/secret"))
}

func TestTableHasNoTextTriggers(t *testing.T) {
	f := newFixture(t, nil)
	for k := range f.router.table {
		require.NotEqual(t, KindText, k.kind)
	}
}
