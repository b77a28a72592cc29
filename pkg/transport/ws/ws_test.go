package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxtutor/voxtutor/pkg/transport"
	"github.com/voxtutor/voxtutor/pkg/transport/ws"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a test WebSocket server. The handler receives the
// accepted conn; the server closes when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialSendsCredentialAndModel(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	gotModel := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		gotModel <- r.URL.Query().Get("model")
		// Hold the connection open until the client hangs up.
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _, _ = conn.Read(ctx)
	})

	d := ws.NewDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, transport.Session{
		Credential: "ephemeral-token",
		Model:      "gpt-4o-realtime-preview",
		BaseURL:    wsURL(srv),
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if auth := <-gotAuth; auth != "Bearer ephemeral-token" {
		t.Fatalf("Authorization = %q", auth)
	}
	if model := <-gotModel; model != "gpt-4o-realtime-preview" {
		t.Fatalf("model = %q", model)
	}
}

func TestSendAudioWrapsBase64(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		received <- data
	})

	d := ws.NewDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, transport.Session{Credential: "t", Model: "m", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.SendAudio(ctx, []byte{0x01, 0x02, 0x03, 0x04}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	var msg struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}
	select {
	case data := <-received:
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the audio event")
	}
	if msg.Type != "input_audio_buffer.append" {
		t.Fatalf("type = %q", msg.Type)
	}
	if msg.Audio != "AQIDBA==" {
		t.Fatalf("audio = %q", msg.Audio)
	}
}

func TestReceiveDeliversServerEvents(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"session.created"}`))
		_, _, _ = conn.Read(ctx)
	})

	d := ws.NewDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, transport.Session{Credential: "t", Model: "m", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case data := <-conn.Receive():
		if string(data) != `{"type":"session.created"}` {
			t.Fatalf("payload = %s", data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no payload received")
	}
}

func TestClosedSignalsOnServerDisconnect(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(_ *websocket.Conn, _ *http.Request) {
		// Return immediately; the deferred close drops the connection.
	})

	d := ws.NewDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, transport.Session{Credential: "t", Model: "m", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-conn.Closed():
	case <-time.After(3 * time.Second):
		t.Fatal("Closed() never signalled after server disconnect")
	}

	if err := conn.SendControl(ctx, []byte(`{"type":"response.create"}`)); err == nil {
		t.Fatal("SendControl after close must fail")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _, _ = conn.Read(ctx)
	})

	d := ws.NewDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, transport.Session{Credential: "t", Model: "m", BaseURL: wsURL(srv)})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
