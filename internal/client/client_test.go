package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/d2verb/btu/internal/protocol"
)

// testServer creates a Unix socket server that hands every connection to
// handler. Returns the socket path.
func testServer(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()

	// Use /tmp directly to avoid long path issues
	// (Unix socket paths are limited to ~104 characters)
	dir, err := os.MkdirTemp("/tmp", "btu-client-")
	if err != nil {
		t.Fatal(err)
	}
	socketPath := filepath.Join(dir, "d.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("failed to create test server: %v", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return // Server closed
			}
			go func() {
				defer conn.Close()
				handler(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		listener.Close()
		os.RemoveAll(dir)
	})

	return socketPath
}

// readRequest reads one request frame from conn.
func readRequest(conn net.Conn) (*protocol.Frame, *protocol.Request, error) {
	dec := protocol.NewDecoder(protocol.DefaultLimits())
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		dec.Feed(buf[:n])
		f, derr := dec.Next()
		if derr != nil {
			return nil, nil, derr
		}
		if f != nil {
			req, err := protocol.DecodeRequest(f)
			return f, req, err
		}
		if err != nil {
			return nil, nil, err
		}
	}
}

// replyJSON answers every request with the response built by fn.
func replyJSON(fn func(req *protocol.Request) *protocol.Response) func(net.Conn) {
	return func(conn net.Conn) {
		f, req, err := readRequest(conn)
		if err != nil {
			return
		}
		out, err := protocol.NewJSONFrame(fn(req), protocol.EncodingUTF8)
		if err != nil {
			return
		}
		out.MessageID = f.MessageID
		wire, _ := out.Marshal()
		conn.Write(wire)
	}
}

func TestNew(t *testing.T) {
	c := New("/tmp/test.sock")

	if c.SocketPath() != "/tmp/test.sock" {
		t.Errorf("SocketPath() = %q, want %q", c.SocketPath(), "/tmp/test.sock")
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
	if c.maxResponseBytes != DefaultMaxResponseBytes {
		t.Errorf("maxResponseBytes = %d, want %d", c.maxResponseBytes, DefaultMaxResponseBytes)
	}
}

func TestClient_CallPing(t *testing.T) {
	// Arrange
	var got *protocol.Request
	socketPath := testServer(t, replyJSON(func(req *protocol.Request) *protocol.Response {
		got = req
		return protocol.NewResultResponse("pong")
	}))
	c := New(socketPath)

	// Act
	value, err := c.Call(context.Background(), protocol.RequestPing, nil)

	// Assert
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	m, ok := value.(map[string]any)
	if !ok || m["result"] != "pong" {
		t.Errorf("Call() = %#v, want {\"result\":\"pong\"}", value)
	}
	if got == nil || got.RequestType != protocol.RequestPing || got.RequestContent != nil {
		t.Errorf("server saw %#v, want ping with null content", got)
	}
}

func TestClient_MissingSocket(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "empty path", path: "", wantErr: protocol.ErrConfiguration},
		{name: "absent path", path: "/tmp/btu-definitely-missing.sock", wantErr: ErrSocketNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			_, err := New(tt.path).Call(context.Background(), protocol.RequestPing, nil)

			// Assert
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Call() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, protocol.ErrConfiguration) {
				t.Errorf("Call() error = %v, want it to wrap %v", err, protocol.ErrConfiguration)
			}
		})
	}
}

func TestClient_NotASocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain-file")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}

	_, err := New(path).Call(context.Background(), protocol.RequestPing, nil)

	if !errors.Is(err, protocol.ErrConfiguration) {
		t.Errorf("Call() error = %v, want %v", err, protocol.ErrConfiguration)
	}
}

func TestClient_OpaquePassthrough(t *testing.T) {
	// Arrange
	socketPath := testServer(t, func(conn net.Conn) {
		if _, _, err := readRequest(conn); err != nil {
			return
		}
		wire, _ := protocol.Encode([]byte("ok"), protocol.ContentTypeBinary, "binary")
		conn.Write(wire)
	})

	// Act
	value, err := New(socketPath).Call(context.Background(), protocol.RequestPing, nil)

	// Assert
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	b, ok := value.([]byte)
	if !ok || string(b) != "ok" {
		t.Errorf("Call() = %#v, want raw bytes %q", value, "ok")
	}
}

func TestClient_Timeout(t *testing.T) {
	// Arrange: the server reads the request and never answers.
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	socketPath := testServer(t, func(conn net.Conn) {
		readRequest(conn)
		<-release
	})
	c := New(socketPath, WithTimeout(100*time.Millisecond))

	// Act
	start := time.Now()
	_, err := c.Call(context.Background(), protocol.RequestPing, nil)
	elapsed := time.Since(start)

	// Assert
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Errorf("Call() error = %v, want %v", err, protocol.ErrTimeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Call() took %v, want about 100ms", elapsed)
	}
}

func TestClient_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	socketPath := testServer(t, func(conn net.Conn) {
		readRequest(conn)
		<-release
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := New(socketPath).Call(ctx, protocol.RequestPing, nil)

	if !errors.Is(err, context.Canceled) || !errors.Is(err, protocol.ErrConnection) {
		t.Errorf("Call() error = %v, want connection error wrapping context.Canceled", err)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	// Arrange: a socket file nobody listens on.
	dir, err := os.MkdirTemp("/tmp", "btu-client-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	socketPath := filepath.Join(dir, "d.sock")
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	// Act
	_, err = New(socketPath).Call(context.Background(), protocol.RequestPing, nil)

	// Assert
	if !errors.Is(err, protocol.ErrConnection) {
		t.Errorf("Call() error = %v, want %v", err, protocol.ErrConnection)
	}
}

func TestClient_EmptyReply(t *testing.T) {
	socketPath := testServer(t, func(conn net.Conn) {
		readRequest(conn)
	})

	value, err := New(socketPath).Call(context.Background(), protocol.RequestPing, nil)

	if err != nil || value != nil {
		t.Errorf("Call() = %v, %v; want nil, nil", value, err)
	}
}

func TestClient_TruncatedReply(t *testing.T) {
	// Arrange: send a frame minus its last payload byte, then hang up.
	socketPath := testServer(t, func(conn net.Conn) {
		readRequest(conn)
		wire, _ := protocol.EncodeJSON(protocol.NewResultResponse("pong"), protocol.EncodingUTF8)
		conn.Write(wire[:len(wire)-1])
	})

	// Act
	_, err := New(socketPath).Call(context.Background(), protocol.RequestPing, nil)

	// Assert
	if !errors.Is(err, protocol.ErrPeerClosed) {
		t.Errorf("Call() error = %v, want %v", err, protocol.ErrPeerClosed)
	}
}

func TestClient_ResponseCap(t *testing.T) {
	socketPath := testServer(t, replyJSON(func(*protocol.Request) *protocol.Response {
		return protocol.NewResultResponse(strings.Repeat("x", 4096))
	}))

	_, err := New(socketPath).Call(context.Background(), protocol.RequestPing, nil)

	if !errors.Is(err, protocol.ErrProtocol) {
		t.Errorf("Call() error = %v, want %v", err, protocol.ErrProtocol)
	}
}

func TestClient_ResponseCapNotChunkAligned(t *testing.T) {
	// Arrange: a reply well under one read chunk but over a 150-byte cap.
	socketPath := testServer(t, replyJSON(func(*protocol.Request) *protocol.Response {
		return protocol.NewResultResponse(strings.Repeat("x", 120))
	}))

	// Act
	_, err := New(socketPath, WithMaxResponseBytes(150)).Call(context.Background(), protocol.RequestPing, nil)

	// Assert
	if !errors.Is(err, protocol.ErrProtocol) {
		t.Errorf("Call() error = %v, want %v", err, protocol.ErrProtocol)
	}
}

func TestClient_ResponseAtCap(t *testing.T) {
	// Arrange: size the cap to exactly the reply frame.
	resp := protocol.NewResultResponse("pong")
	wire, err := protocol.EncodeJSON(resp, protocol.EncodingUTF8)
	if err != nil {
		t.Fatal(err)
	}
	socketPath := testServer(t, func(conn net.Conn) {
		readRequest(conn)
		conn.Write(wire)
	})

	// Act
	value, err := New(socketPath, WithMaxResponseBytes(len(wire))).Call(context.Background(), protocol.RequestPing, nil)

	// Assert
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	m, ok := value.(map[string]any)
	if !ok || m["result"] != "pong" {
		t.Errorf("Call() = %v, want result pong", value)
	}
}

func TestClient_StampsMessageID(t *testing.T) {
	ids := make(chan string, 1)
	socketPath := testServer(t, func(conn net.Conn) {
		f, _, err := readRequest(conn)
		if err != nil {
			ids <- ""
			return
		}
		ids <- f.MessageID
		wire, _ := protocol.EncodeJSON(protocol.NewResultResponse("pong"), protocol.EncodingUTF8)
		conn.Write(wire)
	})

	if err := New(socketPath).Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if id := <-ids; len(id) != 36 {
		t.Errorf("messageId = %q, want a UUID", id)
	}
}

func TestClient_ScheduleCommands(t *testing.T) {
	socketPath := testServer(t, replyJSON(func(req *protocol.Request) *protocol.Response {
		id, _ := req.ScheduleID()
		switch {
		case id == "missing":
			return protocol.NewErrorResponse(protocol.ErrCodeScheduleNotFound, "task schedule missing not found")
		case req.RequestType == protocol.RequestCancelTaskSchedule:
			return protocol.NewResultResponse("Task Schedule " + id + " cancelled.")
		default:
			return protocol.NewResultResponse("Task Schedule " + id + " loaded.")
		}
	}))
	c := New(socketPath)

	tests := []struct {
		name    string
		call    func(ctx context.Context, id string) (string, error)
		id      string
		want    string
		wantErr error
	}{
		{name: "reload", call: c.ReloadTaskSchedule, id: "TS-1", want: "Task Schedule TS-1 loaded."},
		{name: "cancel", call: c.CancelTaskSchedule, id: "TS-2", want: "Task Schedule TS-2 cancelled."},
		{name: "cancel missing", call: c.CancelTaskSchedule, id: "missing", wantErr: protocol.ErrDispatch},
		{name: "empty id", call: c.ReloadTaskSchedule, id: "", wantErr: protocol.ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			got, err := tt.call(context.Background(), tt.id)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
		})
	}
}
