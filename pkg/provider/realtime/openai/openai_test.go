package openai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/pkg/provider/realtime"
	"github.com/simbridge/medsim/pkg/provider/realtime/openai"
	"github.com/simbridge/medsim/pkg/types"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func TestCapabilities_NonEmpty(t *testing.T) {
	p := openai.New("key")
	caps := p.Capabilities()
	require.NotZero(t, caps.ContextWindow)
	require.NotEmpty(t, caps.Voices)
}

func TestConnect_SendsSessionUpdateAndAuthHeaders(t *testing.T) {
	type sessionUpdateMsg struct {
		Type    string `json:"type"`
		Session struct {
			Voice        string `json:"voice"`
			Instructions string `json:"instructions"`
			Tools        []struct {
				Name string `json:"name"`
			} `json:"tools"`
			InputAudioFormat string `json:"input_audio_format"`
		} `json:"session"`
	}

	received := make(chan sessionUpdateMsg, 1)
	authHeader := make(chan string, 1)

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		var msg sessionUpdateMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("my-secret-token", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{
		Voice:        types.VoiceProfile{ID: "alloy"},
		Instructions: "You are the simulated patient.",
		Tools:        []types.ToolDefinition{{Name: "reveal_finding", Description: "Reveal a clinical finding"}},
	})
	require.NoError(t, err)
	defer sess.Close()

	select {
	case auth := <-authHeader:
		require.Equal(t, "Bearer my-secret-token", auth)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for auth header")
	}

	select {
	case msg := <-received:
		require.Equal(t, "session.update", msg.Type)
		require.Equal(t, "alloy", msg.Session.Voice)
		require.Equal(t, "You are the simulated patient.", msg.Session.Instructions)
		require.Equal(t, "pcm16", msg.Session.InputAudioFormat)
		require.NotEmpty(t, msg.Session.Tools)
		require.Equal(t, "reveal_finding", msg.Session.Tools[0].Name)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestSendAudioChunk_EncodesAndSends(t *testing.T) {
	type appendMsg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	audioMsg := make(chan appendMsg, 1)

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		var msg appendMsg
		readJSON(t, conn, &msg)
		audioMsg <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{})
	require.NoError(t, err)
	defer sess.Close()

	wantPCM := []byte{0x10, 0x20, 0x30, 0x40}
	require.NoError(t, sess.SendAudioChunk(context.Background(), wantPCM))

	select {
	case msg := <-audioMsg:
		require.Equal(t, "input_audio_buffer.append", msg.Type)
		got, err := base64.StdEncoding.DecodeString(msg.Audio)
		require.NoError(t, err)
		require.Equal(t, wantPCM, got)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio append message")
	}
}

func TestSendAudioChunk_AfterClose_ReturnsError(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	require.Error(t, sess.SendAudioChunk(context.Background(), []byte{1, 2, 3}))
}

func TestOnAudioOut_DeliversDecodedPCM(t *testing.T) {
	wantPCM := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	encoded := base64.StdEncoding.EncodeToString(wantPCM)

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{"type": "response.audio.delta", "delta": encoded})
		<-conn.CloseRead(context.Background()).Done()
	})

	received := make(chan []byte, 1)
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{
		Callbacks: realtime.Callbacks{OnAudioOut: func(chunk []byte) { received <- chunk }},
	})
	require.NoError(t, err)
	defer sess.Close()

	select {
	case chunk := <-received:
		require.Equal(t, wantPCM, chunk)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio chunk")
	}
}

func TestOnTranscriptDelta_AssemblesCharacterTranscript(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "Hurts "})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "to breathe."})
		writeJSON(t, conn, map[string]any{"type": "response.audio_transcript.done"})
		<-conn.CloseRead(context.Background()).Done()
	})

	received := make(chan types.TranscriptEntry, 1)
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{
		Callbacks: realtime.Callbacks{OnTranscriptDelta: func(e types.TranscriptEntry) { received <- e }},
	})
	require.NoError(t, err)
	defer sess.Close()

	select {
	case entry := <-received:
		require.Equal(t, "Hurts to breathe.", entry.Text)
		require.True(t, entry.IsCharacter)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for transcript")
	}
}

func TestOnTranscriptDelta_ParticipantSpeech(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{
			"type": "conversation.item.input_audio_transcription.completed", "transcript": "Push the adenosine now.",
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	received := make(chan types.TranscriptEntry, 1)
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{
		Callbacks: realtime.Callbacks{OnTranscriptDelta: func(e types.TranscriptEntry) { received <- e }},
	})
	require.NoError(t, err)
	defer sess.Close()

	select {
	case entry := <-received:
		require.Equal(t, "Push the adenosine now.", entry.Text)
		require.False(t, entry.IsCharacter)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for transcript")
	}
}

func TestOnToolIntent_RoutesToCallback(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		writeJSON(t, conn, map[string]any{
			"type": "response.function_call_arguments.done",
			"name": "submit_order", "arguments": `{"type":"ekg"}`, "call_id": "call-42",
		})
		var resp map[string]any
		readJSON(t, conn, &resp)
		require.Equal(t, "conversation.item.create", resp["type"])
		<-conn.CloseRead(context.Background()).Done()
	})

	received := make(chan realtime.ToolIntent, 1)
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{
		Callbacks: realtime.Callbacks{OnToolIntent: func(i realtime.ToolIntent) { received <- i }},
	})
	require.NoError(t, err)
	defer sess.Close()

	select {
	case intent := <-received:
		require.Equal(t, "submit_order", intent.Name)
		require.Equal(t, "call-42", intent.CallID)
		require.NoError(t, sess.SubmitToolResult(context.Background(), intent.CallID, `{"ok":true}`))
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for tool intent")
	}
}

func TestCancelResponse_SendsResponseCancel(t *testing.T) {
	type cancelMsg struct {
		Type string `json:"type"`
	}
	cancelReceived := make(chan cancelMsg, 1)

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		var msg cancelMsg
		readJSON(t, conn, &msg)
		cancelReceived <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.CancelResponse(context.Background()))

	select {
	case msg := <-cancelReceived:
		require.Equal(t, "response.cancel", msg.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for response.cancel")
	}
}

func TestOnDisconnect_FiresOnClose(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	disconnected := make(chan error, 1)
	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{
		Callbacks: realtime.Callbacks{OnDisconnect: func(err error) { disconnected <- err }},
	})
	require.NoError(t, err)

	require.NoError(t, sess.Close())

	select {
	case err := <-disconnected:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for OnDisconnect")
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{})
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}

func TestConcurrentSendAudioChunk_DoesNotRace(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		ctx := context.Background()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	sess, err := p.Connect(context.Background(), realtime.SessionConfig{})
	require.NoError(t, err)
	defer sess.Close()

	const goroutines = 8
	const chunksPerGoroutine = 16

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range chunksPerGoroutine {
				_ = sess.SendAudioChunk(context.Background(), []byte{0xCA, 0xFE, 0xBA, 0xBE})
			}
		}()
	}
	wg.Wait()
}
