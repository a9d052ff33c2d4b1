package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"essay-review-bot/model"
)

type sentMessage struct {
	Kind   string // text, voice, receipt
	ChatID int64
	Text   string
	Ref    string
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sent      []sentMessage
	edits     map[model.MessageRef]string
	failVoice bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{edits: make(map[model.MessageRef]string)}
}

func (m *fakeMessenger) record(msg sentMessage) model.MessageRef {
	m.nextID++
	m.sent = append(m.sent, msg)
	return model.MessageRef{ChatID: msg.ChatID, MessageID: m.nextID}
}

func (m *fakeMessenger) SendText(chatID int64, text string) (model.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(sentMessage{Kind: "text", ChatID: chatID, Text: text}), nil
}

func (m *fakeMessenger) SendVoice(chatID int64, voiceRef, caption string) (model.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failVoice {
		return model.MessageRef{}, errors.New("bot was blocked by the user")
	}
	return m.record(sentMessage{Kind: "voice", ChatID: chatID, Text: caption, Ref: voiceRef}), nil
}

func (m *fakeMessenger) SendReceipt(chatID int64, p *model.Payment, caption string) (model.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(sentMessage{Kind: "receipt", ChatID: chatID, Text: caption, Ref: p.ReceiptRef}), nil
}

func (m *fakeMessenger) EditCaption(ref model.MessageRef, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits[ref] = caption
	return nil
}

func (m *fakeMessenger) setFailVoice(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failVoice = v
}

// to returns the messages of kind sent to chatID.
func (m *fakeMessenger) to(chatID int64, kind string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.ChatID == chatID && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMessenger) edit(ref model.MessageRef) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.edits[ref]
	return c, ok
}

type fakeOracle struct {
	report string
	err    error
	calls  atomic.Int32
}

func (o *fakeOracle) Check(_ context.Context, _, _ string) (string, error) {
	o.calls.Add(1)
	if o.err != nil {
		return "", o.err
	}
	return o.report, nil
}
