package twilio

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	audio   [][]byte
	marks   []string
	stops   int
	stopErr error
	stopped chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{stopped: make(chan struct{})}
}

func (l *recordingListener) OnAudio(audio []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.audio = append(l.audio, audio)
}

func (l *recordingListener) OnMark(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks = append(l.marks, name)
}

func (l *recordingListener) OnStop(err error) {
	l.mu.Lock()
	l.stops++
	l.stopErr = err
	l.mu.Unlock()
	close(l.stopped)
}

type fakeCalls struct {
	listener *recordingListener
	err      error
	calls    chan *Call
}

func (f *fakeCalls) Accept(ctx context.Context, call *Call) (Listener, error) {
	f.calls <- call
	if f.err != nil {
		return nil, f.err
	}
	return f.listener, nil
}

func dial(t *testing.T, calls CallHandler) *websocket.Conn {
	t.Helper()
	opts := DefaultOptions()
	opts.PingInterval = 0
	srv := httptest.NewServer(NewHandler(calls, opts))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func startMessage() Message {
	return Message{
		Event:     EventStart,
		StreamSid: "MZ1",
		Start: &Start{
			StreamSid:        "MZ1",
			CallSid:          "CA1",
			AccountSid:       "AC1",
			CustomParameters: map[string]string{"sessionId": "sess-1"},
			MediaFormat:      MediaFormat{Encoding: "audio/x-mulaw", SampleRate: 8000, Channels: 1},
		},
	}
}

func waitStopped(t *testing.T, l *recordingListener) {
	t.Helper()
	select {
	case <-l.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not stopped")
	}
}

func TestHandler_InboundEvents(t *testing.T) {
	l := newRecordingListener()
	calls := &fakeCalls{listener: l, calls: make(chan *Call, 1)}
	conn := dial(t, calls)

	require.NoError(t, conn.WriteJSON(Message{Event: EventConnected, Protocol: "Call", Version: "1.0.0"}))
	require.NoError(t, conn.WriteJSON(startMessage()))

	call := <-calls.calls
	assert.Equal(t, "MZ1", call.StreamSid)
	assert.Equal(t, "CA1", call.CallSid)
	assert.Equal(t, "sess-1", call.SessionID())
	assert.Equal(t, 8000, call.MediaFormat.SampleRate)

	payload := base64.StdEncoding.EncodeToString([]byte{0xFF, 0x7F})
	require.NoError(t, conn.WriteJSON(Message{Event: EventMedia, Media: &Media{Track: "inbound", Payload: payload}}))
	require.NoError(t, conn.WriteJSON(Message{Event: EventMedia, Media: &Media{Payload: "!!not base64"}}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	require.NoError(t, conn.WriteJSON(Message{Event: EventMark, Mark: &Mark{Name: "job-1"}}))
	require.NoError(t, conn.WriteJSON(Message{Event: EventStop, Stop: &Stop{CallSid: "CA1"}}))

	waitStopped(t, l)
	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.audio, 1)
	assert.Equal(t, []byte{0xFF, 0x7F}, l.audio[0])
	assert.Equal(t, []string{"job-1"}, l.marks)
	assert.Equal(t, 1, l.stops)
	assert.NoError(t, l.stopErr)
}

func TestHandler_MediaBeforeStartIgnored(t *testing.T) {
	l := newRecordingListener()
	calls := &fakeCalls{listener: l, calls: make(chan *Call, 1)}
	conn := dial(t, calls)

	payload := base64.StdEncoding.EncodeToString([]byte{1})
	require.NoError(t, conn.WriteJSON(Message{Event: EventMedia, Media: &Media{Payload: payload}}))
	require.NoError(t, conn.WriteJSON(startMessage()))
	<-calls.calls
	require.NoError(t, conn.WriteJSON(Message{Event: EventStop}))

	waitStopped(t, l)
	assert.Empty(t, l.audio)
}

func TestHandler_ConnectionDropStopsWithError(t *testing.T) {
	l := newRecordingListener()
	calls := &fakeCalls{listener: l, calls: make(chan *Call, 1)}
	conn := dial(t, calls)

	require.NoError(t, conn.WriteJSON(startMessage()))
	<-calls.calls
	conn.Close()

	waitStopped(t, l)
	assert.Error(t, l.stopErr)
	assert.Equal(t, 1, l.stops)
}

func TestHandler_RejectedCallClosesConnection(t *testing.T) {
	calls := &fakeCalls{err: errors.New("no capacity"), calls: make(chan *Call, 1)}
	conn := dial(t, calls)

	require.NoError(t, conn.WriteJSON(startMessage()))
	<-calls.calls

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
}

func TestStream_OutboundMessages(t *testing.T) {
	l := newRecordingListener()
	calls := &fakeCalls{listener: l, calls: make(chan *Call, 1)}
	conn := dial(t, calls)

	require.NoError(t, conn.WriteJSON(startMessage()))
	stream := (<-calls.calls).Stream
	assert.Equal(t, "MZ1", stream.StreamSid())

	require.NoError(t, stream.SendMedia([]byte{0xFF, 0xFE}))
	require.NoError(t, stream.SendMark("job-1"))
	require.NoError(t, stream.Clear())

	var media, mark, clear Message
	require.NoError(t, conn.ReadJSON(&media))
	require.NoError(t, conn.ReadJSON(&mark))
	require.NoError(t, conn.ReadJSON(&clear))

	assert.Equal(t, EventMedia, media.Event)
	assert.Equal(t, "MZ1", media.StreamSid)
	decoded, err := base64.StdEncoding.DecodeString(media.Media.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFE}, decoded)

	assert.Equal(t, EventMark, mark.Event)
	assert.Equal(t, "job-1", mark.Mark.Name)
	assert.Equal(t, EventClear, clear.Event)
	assert.Equal(t, "MZ1", clear.StreamSid)

	require.NoError(t, conn.WriteJSON(Message{Event: EventStop}))
	waitStopped(t, l)
	assert.ErrorIs(t, stream.SendMedia([]byte{1}), ErrStreamClosed)
}

func TestStream_CloseEndsCall(t *testing.T) {
	l := newRecordingListener()
	calls := &fakeCalls{listener: l, calls: make(chan *Call, 1)}
	conn := dial(t, calls)

	require.NoError(t, conn.WriteJSON(startMessage()))
	stream := (<-calls.calls).Stream
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	// The client's read loop answers the close frame
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	waitStopped(t, l)
	assert.NoError(t, l.stopErr)
	assert.ErrorIs(t, stream.Clear(), ErrStreamClosed)
}
