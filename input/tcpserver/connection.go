package tcpserver

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"

	"github.com/logtide/logtide/defs"
	"github.com/logtide/logtide/input/lineparser"
	"github.com/logtide/logtide/util"
)

// connection drives the dialogue with one client: read line, reply line.
// It's single-threaded, so records of one client enter the buffer in receive order.
type connection struct {
	logger           logger.Logger
	server           *TCPServer
	conn             *net.TCPConn
	clientID         string
	clientIP         string
	connectedAt      time.Time
	messagesReceived uint64 // atomic
	messagesRejected uint64 // atomic
}

func newConnection(server *TCPServer, conn *net.TCPConn) *connection {
	remote := conn.RemoteAddr().(*net.TCPAddr)
	clientID := fmt.Sprintf("%s:%d-%d", remote.IP.String(), remote.Port, time.Now().UnixMilli())
	return &connection{
		logger: server.logger.WithFields(logger.Fields{
			defs.LabelPart:     "connection",
			defs.LabelClient:   conn.RemoteAddr().String(),
			defs.LabelClientID: clientID,
		}),
		server:      server,
		conn:        conn,
		clientID:    clientID,
		clientIP:    remote.IP.String(),
		connectedAt: time.Now(),
	}
}

func (c *connection) run() {
	defer c.cleanup()
	c.logger.Info("accepted connection")

	if err := c.conn.SetKeepAlive(true); err != nil {
		c.logger.Warnf("error enabling keep-alive: %s", err.Error())
	}

	// background goroutine to close the connection on stop request
	abortConn := channels.NewSignalAwaitable()
	go func() {
		channels.AnyAwaitables(c.server.stopRequest, abortConn).Next(func() {
			if !abortConn.Peek() {
				c.logger.Info("close connection on stop request")
			}
		}).WaitForever()
		c.conn.Close()
	}()
	defer abortConn.Signal()

	c.writeReply(defs.ReplyConnected + c.clientID)

	reader := bufio.NewReaderSize(c.conn, defs.InputLogMaxMessageBytes*2)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(defs.ConnectionReadTimeout)); err != nil {
			c.logger.Warnf("error setting read deadline: %s", err.Error())
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			switch {
			case util.IsNetworkTimeout(err):
				c.logger.Info("closing idle connection on read timeout")
			case util.IsNetworkClosed(err) && c.server.stopRequest.Peek():
				c.logger.Info("closed by stop request")
			case util.IsNetworkClosed(err):
				c.logger.Info("connection closed by client")
			default:
				c.logger.Warn("read() error: ", err)
			}
			break
		}

		reply, disconnect := c.handleLine(strings.TrimRight(line, "\r\n"))
		c.writeReply(reply)
		if disconnect {
			c.logger.Info("client requested disconnect")
			break
		}
	}
}

// handleLine processes one protocol line and returns (reply, disconnect). Unexpected
// panics are turned into a PROCESSING_FAILED reply; the connection survives.
func (c *connection) handleLine(line string) (reply string, disconnect bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Errorf("error handling line: %v", recovered)
			reply = fmt.Sprintf("%s%v", defs.ReplyErrorProcessingFailed, recovered)
			disconnect = false
		}
	}()

	if strings.TrimSpace(line) == "" {
		return defs.ReplyErrorEmptyMessage, false
	}

	received := atomic.AddUint64(&c.messagesReceived, 1)
	c.server.metrics.receivedMessagesTotal.Inc()

	if strings.HasPrefix(line, defs.CommandPrefix) {
		return c.handleCommand(line[len(defs.CommandPrefix):])
	}

	if !lineparser.IsValidMessage(line) {
		c.countRejected()
		return defs.ReplyErrorInvalidFormat, false
	}

	record := lineparser.Parse(line)
	lineparser.Enrich(record, c.clientIP, c.clientID)

	if !c.server.buffer.Enqueue(record) {
		c.countRejected()
		return defs.ReplyErrorBufferFull, false
	}

	if received%1000 == 0 {
		c.logger.Infof("messages=%d rejected=%d", received, atomic.LoadUint64(&c.messagesRejected))
	}
	return defs.ReplyQueued + record.ID, false
}

func (c *connection) countRejected() {
	atomic.AddUint64(&c.messagesRejected, 1)
	c.server.metrics.rejectedMessagesTotal.Inc()
}

func (c *connection) writeReply(reply string) {
	if _, err := c.conn.Write([]byte(reply + "\n")); err != nil {
		if !util.IsNetworkClosed(err) {
			c.logger.Debugf("error writing reply: %s", err.Error())
		}
	}
}

func (c *connection) cleanup() {
	c.conn.Close()
	c.server.clients.Delete(c.clientID)
	c.server.metrics.activeConnections.Dec()
	c.server.taskCounter.Done()
	c.logger.Infof("connection ended - duration=%s messages=%d rejected=%d",
		time.Since(c.connectedAt).Round(time.Second),
		atomic.LoadUint64(&c.messagesReceived), atomic.LoadUint64(&c.messagesRejected))
}

// uptime and rate for the STATS command
func (c *connection) clientStats() string {
	uptime := time.Since(c.connectedAt)
	received := atomic.LoadUint64(&c.messagesReceived)
	rate := 0.0
	if uptime > 0 {
		rate = float64(received) / uptime.Seconds()
	}
	return fmt.Sprintf("Messages:%d,Rejected:%d,Rate:%.2f/s,Uptime:%ds",
		received, atomic.LoadUint64(&c.messagesRejected), rate, int64(uptime.Seconds()))
}
