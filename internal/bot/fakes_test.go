package bot

import (
	"context"
	"sync"
	"time"

	"replybot/internal/events"
	"replybot/internal/history"
	"replybot/internal/llm"
	"replybot/internal/platform"
	"replybot/internal/policy"
	"replybot/internal/storage"
)

type reaction struct {
	threadID, messageID, emoji string
}

type fakeMessenger struct {
	self string
	evs  chan platform.Event

	mu      sync.Mutex
	sent    []platform.OutgoingMessage
	reacts  []reaction
	typing  int
	sendErr error

	sentCh chan platform.OutgoingMessage
}

func newFakeMessenger(self string) *fakeMessenger {
	return &fakeMessenger{self: self, evs: make(chan platform.Event, 16), sentCh: make(chan platform.OutgoingMessage, 64)}
}

func (f *fakeMessenger) Listen(context.Context) (<-chan platform.Event, error) { return f.evs, nil }

func (f *fakeMessenger) SendText(_ context.Context, msg platform.OutgoingMessage) error {
	f.mu.Lock()
	err := f.sendErr
	if err == nil {
		f.sent = append(f.sent, msg)
	}
	f.mu.Unlock()
	if err == nil {
		f.sentCh <- msg
	}
	return err
}

func (f *fakeMessenger) React(_ context.Context, threadID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, reaction{threadID, messageID, emoji})
	return nil
}

func (f *fakeMessenger) SendTyping(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeMessenger) SelfID() string { return f.self }
func (f *fakeMessenger) Close() error   { return nil }

func (f *fakeMessenger) sentMessages() []platform.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.OutgoingMessage(nil), f.sent...)
}

func (f *fakeMessenger) reactions() []reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reaction(nil), f.reacts...)
}

type fakeClassifier struct {
	verdict    policy.Verdict
	err        error
	action     policy.Action
	actionErr  error
	calls      int
	lastText   string
	lastRecent []history.Exchange
}

func (f *fakeClassifier) ShouldRespond(_ context.Context, text string, recent []history.Exchange) (policy.Verdict, error) {
	f.calls++
	f.lastText = text
	f.lastRecent = recent
	return f.verdict, f.err
}

func (f *fakeClassifier) ChooseAction(context.Context, string, []history.Exchange) (policy.Action, error) {
	return f.action, f.actionErr
}

type fakeLLM struct {
	mu    sync.Mutex
	resp  llm.Response
	err   error
	calls [][]llm.Message
}

func (f *fakeLLM) Generate(_ context.Context, msgs []llm.Message) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]llm.Message(nil), msgs...))
	return f.resp, f.err
}

// fixedRand returns the same draw every time and always index 0.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) IntN(int) int     { return 0 }

type sleepRecorder struct {
	mu    sync.Mutex
	total time.Duration
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.total += d
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) AppendInteraction(ev storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) LoadInteractions() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event(nil), m.events...), nil
}

type memPublisher struct {
	mu       sync.Mutex
	outcomes []events.Outcome
}

func (m *memPublisher) Publish(o events.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memPublisher) Close() {}

type allowList map[string]bool

func (a allowList) IsAllowed(id string) bool { return a[id] }
