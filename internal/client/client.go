// Package client implements the interactive chat client: it dials the
// server, introduces itself, renders incoming events, and turns typed
// lines into message frames.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/protocol"
)

// Options configures a client session.
type Options struct {
	// Name is the requested display name; empty picks a random one.
	Name    string
	Address string
	Port    int
}

// Run connects and drives the interactive session until the user exits or
// the server goes away.
func Run(opts Options) error {
	name := opts.Name
	if name == "" {
		name = RandomName()
	}

	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(opts.Address, strconv.Itoa(opts.Port)),
		Path:   "/ws",
	}
	fmt.Printf("Connecting to %s as %s...\n", u.Host, name)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u.Host, err)
	}
	defer conn.Close()

	if err := writeFrame(conn, protocol.ClientFrame{Type: protocol.FrameHello, Name: name}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	rl, err := readline.New(name + ": ")
	if err != nil {
		return fmt.Errorf("init input: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintf(out, "Chat started as %s. Type messages and press Enter; Ctrl+C to exit.\n", name)

	done := make(chan struct{})
	go func() {
		defer close(done)
		receiveLoop(conn, out)
		// Unblocks the pending Readline so the input loop notices.
		rl.Close()
	}()

	inputLoop(rl, conn, done)

	// Best effort goodbye; the server also handles an abrupt close.
	_ = writeFrame(conn, protocol.ClientFrame{Type: protocol.FrameBye})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

func inputLoop(rl *readline.Instance, conn *websocket.Conn, done <-chan struct{}) {
	for {
		line, err := rl.Readline()
		if err != nil {
			// Interrupt, EOF, or the receive loop closed the editor.
			return
		}
		select {
		case <-done:
			return
		default:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := writeFrame(conn, protocol.ClientFrame{Type: protocol.FrameMessage, Text: line}); err != nil {
			fmt.Fprintf(rl.Stdout(), "failed to send message: %v\n", err)
			return
		}
	}
}

func receiveLoop(conn *websocket.Conn, out io.Writer) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "Server closed the connection.")
			} else if !strings.Contains(err.Error(), "use of closed network connection") {
				fmt.Fprintf(out, "Connection lost: %v\n", err)
			}
			return
		}

		frame, err := protocol.DecodeServerFrame(raw)
		if err != nil {
			fmt.Fprintf(out, "ignoring unreadable frame: %v\n", err)
			continue
		}
		render(out, frame)
	}
}

func writeFrame(conn *websocket.Conn, frame protocol.ClientFrame) error {
	data, err := protocol.EncodeClientFrame(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
