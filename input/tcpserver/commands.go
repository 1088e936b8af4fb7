package tcpserver

import (
	"strings"

	"github.com/logtide/logtide/defs"
)

// handleCommand routes the control sub-protocol. The command name is the first token up
// to ':', case-insensitive; anything after it is currently ignored.
func (c *connection) handleCommand(command string) (string, bool) {
	name := strings.ToUpper(strings.SplitN(command, ":", 2)[0])

	switch name {
	case "PING":
		return defs.ReplyPong, false
	case "STATS":
		return defs.ReplyStats + c.clientStats(), false
	case "BUFFER_STATS":
		return defs.ReplyBufferStats + c.server.buffer.Stats().String(), false
	case "DISCONNECT":
		return defs.ReplyDisconnecting, true
	case "HELP":
		return defs.ReplyCommands, false
	default:
		return defs.ReplyErrorUnknownCommand + name, false
	}
}
