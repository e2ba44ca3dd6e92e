package client

import (
	"io"

	"github.com/fatih/color"

	"github.com/parlorchat/parlor/internal/protocol"
)

var (
	messageColor = color.New(color.FgGreen)
	noticeColor  = color.New(color.FgYellow)
	rosterColor  = color.New(color.FgBlue)
)

// render prints one server frame in the terminal style of the chat:
// green messages, yellow join/leave notices, blue roster blocks.
func render(w io.Writer, frame protocol.ServerFrame) {
	switch frame.Type {
	case protocol.EventMessage:
		stamp := frame.Timestamp.Local().Format("15:04:05")
		messageColor.Fprintf(w, "[%s] %s: %s\n", stamp, frame.Name, frame.Text)
	case protocol.EventJoin:
		noticeColor.Fprintf(w, "*** %s joined the chat ***\n", frame.Name)
	case protocol.EventLeave:
		noticeColor.Fprintf(w, "*** %s left the chat ***\n", frame.Name)
	case protocol.EventRoster:
		rosterColor.Fprintf(w, "=== Users online: %d ===\n", frame.Count)
		for _, user := range frame.Users {
			rosterColor.Fprintf(w, "  %s\n", user.Name)
		}
	}
}
