package chatclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)

type fakeTransport struct {
	mu         sync.Mutex
	sent       []domain.WSRequest
	sendErr    error
	reconnects int

	events chan domain.Event
	states chan ConnState
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan domain.Event, 16),
		states: make(chan ConnState, 16),
	}
}

func (f *fakeTransport) Send(req domain.WSRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeTransport) Events() <-chan domain.Event { return f.events }
func (f *fakeTransport) States() <-chan ConnState    { return f.states }

func (f *fakeTransport) Reconnect() {
	f.mu.Lock()
	f.reconnects++
	f.mu.Unlock()
}

func (f *fakeTransport) requests(typ domain.EventType) []domain.WSRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WSRequest
	for _, r := range f.sent {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeTransport) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func startEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	logger.SetNewNop()

	ft := newFakeTransport()
	e := NewEngine("p1", ft)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e, ft
}

func setState(t *testing.T, e *Engine, ft *fakeTransport, st ConnState) {
	t.Helper()
	ft.states <- st
	require.Eventually(t, func() bool { return e.ConnState() == st }, waitTimeout, waitTick)
}

func entryEventually(t *testing.T, e *Engine, localID string, cond func(Entry) bool) Entry {
	t.Helper()
	var got Entry
	require.Eventually(t, func() bool {
		entry, ok := e.Snapshot().FindLocal(localID)
		got = entry
		return ok && cond(entry)
	}, waitTimeout, waitTick)
	return got
}

func TestEngineSendWhileConnected(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateConnected)

	localID, err := e.Send("d1", "hello doctor")
	require.NoError(t, err)

	entry := entryEventually(t, e, localID, func(en Entry) bool { return !en.Queued })
	assert.Equal(t, Speculative, entry.Kind)
	assert.True(t, entry.InFlight())

	sent := ft.requests(domain.EventSendMessage)
	require.Len(t, sent, 1)
	assert.Equal(t, "d1", sent[0].ReceiverID)
	assert.Equal(t, "hello doctor", sent[0].Content)
	assert.Equal(t, entry.Message.ClientMsgID, sent[0].ClientMsgID)

	echo := domain.Message{ID: 7, SenderID: "p1", ReceiverID: "d1", Content: "hello doctor", ClientMsgID: sent[0].ClientMsgID, CreatedAt: time.Now().UTC()}
	ft.events <- domain.NewMessageEvent(domain.EventMessageSent, "d1", echo)

	entry = entryEventually(t, e, localID, func(en Entry) bool { return en.Kind == Confirmed })
	assert.Equal(t, int64(7), entry.Message.ID)
	assert.Len(t, e.Snapshot().Entries("d1"), 1)
}

func TestEngineSendTrimsContentLikeServer(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateConnected)

	localID, err := e.Send("d1", "  hello\n")
	require.NoError(t, err)
	entry := entryEventually(t, e, localID, func(en Entry) bool { return en.InFlight() })
	assert.Equal(t, "hello", entry.Message.Content)

	sent := ft.requests(domain.EventSendMessage)
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].Content)

	echo := domain.Message{ID: 3, SenderID: "p1", ReceiverID: "d1", Content: "hello", ClientMsgID: sent[0].ClientMsgID, CreatedAt: time.Now().UTC()}
	ft.events <- domain.NewMessageEvent(domain.EventMessageSent, "d1", echo)

	entryEventually(t, e, localID, func(en Entry) bool { return en.Kind == Confirmed })
	assert.Len(t, e.Snapshot().Entries("d1"), 1)
}

func TestEngineDropsRepeatedEventIDs(t *testing.T) {
	e, ft := startEngine(t)

	first := domain.NewMessageEvent(domain.EventNewMessage, "d1", confirmed(5, "d1", "p1", "first", t0))
	replay := first
	replay.Data = &domain.Message{ID: 6, SenderID: "d1", ReceiverID: "p1", Content: "replayed", CreatedAt: t0.Add(time.Hour)}
	later := domain.NewMessageEvent(domain.EventNewMessage, "d1", confirmed(8, "d1", "p1", "later", t0.Add(2*time.Hour)))

	ft.events <- first
	ft.events <- replay
	ft.events <- later

	require.Eventually(t, func() bool { return len(e.Snapshot().Entries("d1")) == 2 }, waitTimeout, waitTick)
	assert.Equal(t, []int64{5, 8}, ids(e.Snapshot().Entries("d1")))
}

func TestEngineQueuesWhileReconnecting(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateReconnecting)

	localID, err := e.Send("d1", "are you there")
	require.NoError(t, err)
	entryEventually(t, e, localID, func(en Entry) bool { return en.Queued })
	assert.Empty(t, ft.requests(domain.EventSendMessage))

	setState(t, e, ft, StateConnected)
	entry := entryEventually(t, e, localID, func(en Entry) bool { return !en.Queued })
	assert.True(t, entry.InFlight())
	require.Len(t, ft.requests(domain.EventSendMessage), 1)
}

func TestEngineGiveUpMarksQueuedFailed(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateReconnecting)

	localID, err := e.Send("d1", "hello")
	require.NoError(t, err)
	first := entryEventually(t, e, localID, func(en Entry) bool { return en.Queued })

	setState(t, e, ft, StateDisconnected)
	failed := entryEventually(t, e, localID, func(en Entry) bool { return en.Failed() })
	assert.Equal(t, ErrGaveUp.Error(), failed.Error)

	e.RetryConnection()
	ft.mu.Lock()
	assert.Equal(t, 1, ft.reconnects)
	ft.mu.Unlock()

	// 離線時重試仍先排隊, 連線後以新的 clientMsgId 送出
	require.NoError(t, e.Retry(localID))
	entryEventually(t, e, localID, func(en Entry) bool { return en.Queued && !en.Failed() })

	setState(t, e, ft, StateConnected)
	entryEventually(t, e, localID, func(en Entry) bool { return en.InFlight() })
	sent := ft.requests(domain.EventSendMessage)
	require.Len(t, sent, 1)
	assert.NotEqual(t, first.Message.ClientMsgID, sent[0].ClientMsgID)
}

func TestEngineConnectionLostFailsInFlight(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateConnected)

	localID, err := e.Send("d1", "hello")
	require.NoError(t, err)
	entryEventually(t, e, localID, func(en Entry) bool { return en.InFlight() })

	setState(t, e, ft, StateReconnecting)
	entry := entryEventually(t, e, localID, func(en Entry) bool { return en.Failed() })
	assert.Equal(t, ErrConnectionLost.Error(), entry.Error)
}

func TestEngineServerErrorAndRetry(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateConnected)

	localID, err := e.Send("p2", "hi")
	require.NoError(t, err)
	entry := entryEventually(t, e, localID, func(en Entry) bool { return en.InFlight() })

	ft.events <- domain.NewErrorEvent(domain.ErrNotPermitted, entry.Message.ClientMsgID)
	entry = entryEventually(t, e, localID, func(en Entry) bool { return en.Failed() })
	assert.Equal(t, domain.ErrNotPermitted.Error(), entry.Error)

	require.NoError(t, e.Retry(localID))
	retried := entryEventually(t, e, localID, func(en Entry) bool { return en.InFlight() })
	assert.NotEqual(t, entry.Message.ClientMsgID, retried.Message.ClientMsgID)
	assert.Len(t, ft.requests(domain.EventSendMessage), 2)
	assert.Len(t, e.Snapshot().Entries("p2"), 1)
}

func TestEngineTransportSendFailure(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateConnected)
	ft.setSendErr(ErrSendBufferFull)

	localID, err := e.Send("d1", "hello")
	require.NoError(t, err)
	entry := entryEventually(t, e, localID, func(en Entry) bool { return en.Failed() })
	assert.Equal(t, ErrSendBufferFull.Error(), entry.Error)
}

func TestEngineValidation(t *testing.T) {
	e, _ := startEngine(t)

	_, err := e.Send("d1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)
	_, err = e.Send("", "hi")
	assert.ErrorIs(t, err, domain.ErrMissingReceiver)

	assert.ErrorIs(t, e.Retry("local-missing"), ErrUnknownEntry)

	localID, err := e.Send("d1", "queued")
	require.NoError(t, err)
	entryEventually(t, e, localID, func(en Entry) bool { return en.Queued })
	assert.ErrorIs(t, e.Retry(localID), ErrNotFailed)
}

func TestEngineMarkReadAndTyping(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateConnected)

	ft.events <- domain.NewMessageEvent(domain.EventNewMessage, "d1", confirmed(3, "d1", "p1", "results are in", t0))
	require.Eventually(t, func() bool { return e.Snapshot().UnreadTotal() == 1 }, waitTimeout, waitTick)

	require.NoError(t, e.MarkRead("d1"))
	require.NoError(t, e.StartTyping("d1"))
	require.NoError(t, e.StopTyping("d1"))

	require.Eventually(t, func() bool { return len(ft.requests(domain.EventTypingStop)) == 1 }, waitTimeout, waitTick)
	assert.Zero(t, e.Snapshot().UnreadTotal())

	read := ft.requests(domain.EventMarkRead)
	require.Len(t, read, 1)
	assert.Equal(t, "d1", read[0].SenderID)
	assert.Len(t, ft.requests(domain.EventTypingStart), 1)
}

func TestEngineTypingDroppedWhileOffline(t *testing.T) {
	e, ft := startEngine(t)
	setState(t, e, ft, StateReconnecting)

	require.NoError(t, e.StartTyping("d1"))
	require.NoError(t, e.MarkRead("d1"))
	localID, err := e.Send("d1", "sync")
	require.NoError(t, err)
	entryEventually(t, e, localID, func(en Entry) bool { return en.Queued })

	assert.Empty(t, ft.requests(domain.EventTypingStart))
	assert.Empty(t, ft.requests(domain.EventMarkRead))
}

func TestEngineSubscribe(t *testing.T) {
	e, ft := startEngine(t)
	updates := e.Subscribe()

	ft.events <- domain.NewMessageEvent(domain.EventNewMessage, "d1", confirmed(1, "d1", "p1", "hi", t0))

	select {
	case c := <-updates:
		assert.Len(t, c.Entries("d1"), 1)
	case <-time.After(waitTimeout):
		t.Fatal("no cache update published")
	}
}

func TestEngineStopped(t *testing.T) {
	logger.SetNewNop()
	e := NewEngine("p1", newFakeTransport())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = e.Send("d1", "hi")
	assert.ErrorIs(t, err, ErrEngineStopped)
}
