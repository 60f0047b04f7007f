package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/richinex/tablecopilot/server"
)

// ClientOptions configures the check and chat commands.
type ClientOptions struct {
	URL       string
	SessionID string
	Timeout   time.Duration
}

func (o ClientOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 5 * time.Second
	}
	return o.Timeout
}

func dial(ctx context.Context, opts ClientOptions) (*websocket.Conn, server.Incoming, error) {
	dialer := websocket.Dialer{HandshakeTimeout: opts.timeout()}
	ws, resp, err := dialer.DialContext(ctx, opts.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, server.Incoming{}, fmt.Errorf("connect to %s: %w", opts.URL, err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(opts.timeout()))
	var hello server.Incoming
	if err := ws.ReadJSON(&hello); err != nil {
		_ = ws.Close()
		return nil, server.Incoming{}, fmt.Errorf("read connection frame: %w", err)
	}
	if hello.Type != server.FrameConnection {
		_ = ws.Close()
		return nil, server.Incoming{}, fmt.Errorf("unexpected first frame %q", hello.Type)
	}
	_ = ws.SetReadDeadline(time.Time{})
	return ws, hello, nil
}

// Check connects, prints the connection frame and verifies ping/pong.
func Check(ctx context.Context, opts ClientOptions, out io.Writer) error {
	ws, hello, err := dial(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.Close()
	fmt.Fprintf(out, "Connected: %s\n", hello.Message)

	if err := ws.WriteJSON(server.ClientMessage{Type: server.TypePing}); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(opts.timeout()))
	for {
		var in server.Incoming
		if err := ws.ReadJSON(&in); err != nil {
			return fmt.Errorf("wait for pong: %w", err)
		}
		if in.Type == server.FramePong {
			break
		}
	}
	fmt.Fprintf(out, "Server at %s is healthy\n", opts.URL)
	return nil
}

// Chat runs an interactive session: each input line is sent as a message
// and live frames are printed until the turn's response arrives.
// "/clear" clears the session, "/ping" pings and "/quit" exits.
func Chat(ctx context.Context, opts ClientOptions, in io.Reader, out io.Writer) error {
	ws, hello, err := dial(ctx, opts)
	if err != nil {
		return err
	}
	defer ws.Close()
	fmt.Fprintf(out, "Connected: %s\n", hello.Message)
	fmt.Fprintln(out, "Type a message, /clear, /ping or /quit.")

	done := make(chan struct{})
	defer close(done)
	frames := make(chan server.Incoming)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			var f server.Incoming
			if err := ws.ReadJSON(&f); err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-done:
				return
			}
		}
	}()

	wait := func(terminal func(server.Incoming) bool) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f, ok := <-frames:
				if !ok {
					return fmt.Errorf("connection closed: %w", <-readErr)
				}
				if text, show := formatFrame(f); show {
					fmt.Fprint(out, text)
				}
				if f.Type == server.FrameError || terminal(f) {
					return nil
				}
			}
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var (
			msg      server.ClientMessage
			terminal func(server.Incoming) bool
		)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			msg = server.ClientMessage{Type: server.TypeClearHistory, SessionID: opts.SessionID}
			terminal = func(f server.Incoming) bool { return f.Type == server.FrameStatus }
		case "/ping":
			msg = server.ClientMessage{Type: server.TypePing}
			terminal = func(f server.Incoming) bool { return f.Type == server.FramePong }
		default:
			msg = server.ClientMessage{Type: server.TypeMessage, Content: line, SessionID: opts.SessionID}
			terminal = func(f server.Incoming) bool { return f.Type == server.FrameResponse }
		}

		if err := ws.WriteJSON(msg); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if err := wait(terminal); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
