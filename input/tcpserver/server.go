// Package tcpserver accepts client connections on a TCP port and drives the
// line-oriented ingestion protocol: log record lines are parsed and enqueued to the
// shared buffer, "CMD:" lines are answered by the control sub-protocol.
package tcpserver

import (
	"net"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/defs"
	"github.com/logtide/logtide/util"
)

type serverMetrics struct {
	connectionsTotal         promext.RWCounter
	rejectedConnectionsTotal promext.RWCounter
	activeConnections        promext.RWGauge
	receivedMessagesTotal    promext.RWCounter
	rejectedMessagesTotal    promext.RWCounter
}

// TCPServer is the acceptor: it listens on a TCP address, admits connections up to
// maxClients and spawns one connection handler per client
//
// Enqueueing is non-blocking all the way down, so a saturated buffer never stalls
// clients: a full buffer makes room by eviction, and a rejected enqueue becomes an
// error reply.
type TCPServer struct {
	logger      logger.Logger
	socket      *net.TCPListener
	buffer      base.LogBuffer
	maxClients  int
	clients     *xsync.MapOf[*connection]
	stopRequest channels.Awaitable
	taskCounter *sync.WaitGroup
	stopped     channels.Awaitable
	metrics     serverMetrics
}

// NewTCPServer creates a socket listening on the given TCP address and returns the
// server plus the actual bound address (the port may be 0 in tests)
func NewTCPServer(parentLogger logger.Logger, address string, maxClients int, buffer base.LogBuffer,
	metricFactory *base.MetricFactory, stopRequest channels.Awaitable) (*TCPServer, string, error) {

	socket, err := net.Listen("tcp", address)
	if err != nil {
		return nil, "", err
	}
	boundAddr := socket.Addr().String()

	slogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "TCPServer",
		defs.LabelAddress:   boundAddr,
	})
	slogger.Info("start listening")

	// init taskCounter with 1 for the accept loop itself
	taskCounter := &sync.WaitGroup{}
	taskCounter.Add(1)

	return &TCPServer{
		logger:      slogger,
		socket:      socket.(*net.TCPListener),
		buffer:      buffer,
		maxClients:  maxClients,
		clients:     xsync.NewMapOf[*connection](),
		stopRequest: stopRequest,
		taskCounter: taskCounter,
		stopped:     channels.NewWaitGroupAwaitable(taskCounter),
		metrics: serverMetrics{
			connectionsTotal:         metricFactory.AddOrGetCounter("server_connections_total", "Numbers of accepted connections", nil, nil),
			rejectedConnectionsTotal: metricFactory.AddOrGetCounter("server_rejected_connections_total", "Numbers of connections rejected by the admission cap", nil, nil),
			activeConnections:        metricFactory.AddOrGetGauge("server_active_connections", "Current numbers of open connections", nil, nil),
			receivedMessagesTotal:    metricFactory.AddOrGetCounter("server_received_messages_total", "Numbers of received protocol lines", nil, nil),
			rejectedMessagesTotal:    metricFactory.AddOrGetCounter("server_rejected_messages_total", "Numbers of rejected log messages", nil, nil),
		},
	}, boundAddr, nil
}

// Start launches the accept loop in background
func (server *TCPServer) Start() {
	go server.run()
}

// Stopped is signaled when the accept loop and all connection handlers have exited
func (server *TCPServer) Stopped() channels.Awaitable {
	return server.stopped
}

// ActiveConnections returns the current numbers of open client connections
func (server *TCPServer) ActiveConnections() int {
	return int(server.metrics.activeConnections.Get())
}

// ReceivedMessages returns the total numbers of received protocol lines
func (server *TCPServer) ReceivedMessages() uint64 {
	return server.metrics.receivedMessagesTotal.Get()
}

// RejectedMessages returns the total numbers of rejected log messages
func (server *TCPServer) RejectedMessages() uint64 {
	return server.metrics.rejectedMessagesTotal.Get()
}

func (server *TCPServer) run() {
	// background goroutine to close the socket on stop request, in case accept is blocked
	go func() {
		server.stopRequest.WaitForever()
		server.logger.Info("close listener on stop request")
		server.socket.Close()
	}()

	server.logger.Info("start accept loop")
	for {
		// short deadline so the loop observes shutdown requests promptly
		if err := server.socket.SetDeadline(time.Now().Add(defs.ListenerAcceptTimeout)); err != nil {
			server.logger.Warnf("error setting accept deadline: %s", err.Error())
		}
		conn, err := server.socket.AcceptTCP()
		if err != nil {
			if util.IsNetworkTimeout(err) {
				if server.stopRequest.Peek() {
					break
				}
				continue
			}
			if server.stopRequest.Peek() && util.IsNetworkClosed(err) {
				// closed on stop request
			} else {
				server.logger.Error("accept() error: ", err)
			}
			break
		}

		if server.ActiveConnections() >= server.maxClients {
			server.logger.Warnf("rejected connection from %s: too many clients", conn.RemoteAddr())
			server.metrics.rejectedConnectionsTotal.Inc()
			conn.Close()
			continue
		}

		handler := newConnection(server, conn)
		server.clients.Store(handler.clientID, handler)
		server.metrics.connectionsTotal.Inc()
		server.metrics.activeConnections.Inc()
		server.taskCounter.Add(1)
		go handler.run()
	}
	server.logger.Info("end accept loop")

	// the accept loop is done; established connections may still be open
	server.taskCounter.Done()
}
