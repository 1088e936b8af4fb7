package tcpserver

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logtide/logtide/base"
	"github.com/logtide/logtide/buffer/ringbuffer"
	"github.com/logtide/logtide/defs"
)

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTestServer(t *testing.T, capacity int, maxClients int, metricPrefix string) (*TCPServer, *ringbuffer.RingBuffer, string, *channels.SignalAwaitable) {
	rlogger := logger.WithField("test", t.Name())
	mfactory := base.NewMetricFactory(metricPrefix)
	buf := ringbuffer.NewRingBuffer(rlogger, capacity, mfactory)
	stop := channels.NewSignalAwaitable()
	server, addr, err := NewTCPServer(rlogger, "localhost:0", maxClients, buf, mfactory, stop)
	require.Nil(t, err)
	server.Start()
	return server, buf, addr, stop
}

func dialTestClient(t *testing.T, addr string) *testClient {
	conn, err := net.Dial("tcp", addr)
	require.Nil(t, err)
	conn.SetDeadline(time.Now().Add(defs.TestReadTimeout))
	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (client *testClient) send(t *testing.T, line string) {
	_, err := client.conn.Write([]byte(line + "\n"))
	assert.Nil(t, err)
}

func (client *testClient) readLine(t *testing.T) string {
	line, err := client.reader.ReadString('\n')
	require.Nil(t, err)
	return strings.TrimSuffix(line, "\n")
}

func (client *testClient) close() {
	client.conn.Close()
}

func TestServerGreetingAndQueueing(t *testing.T) {
	server, buf, addr, stop := newTestServer(t, 100, 10, "tsrv_queue_")
	client := dialTestClient(t, addr)
	defer client.close()

	greeting := client.readLine(t)
	assert.True(t, strings.HasPrefix(greeting, defs.ReplyConnected), greeting)
	clientID := strings.TrimPrefix(greeting, defs.ReplyConnected)
	assert.Contains(t, clientID, ":")
	assert.Contains(t, clientID, "-")

	for i := 1; i <= 5; i++ {
		client.send(t, fmt.Sprintf("INFO|A|h|m%d|k=v", i))
		reply := client.readLine(t)
		assert.True(t, strings.HasPrefix(reply, defs.ReplyQueued), reply)
	}

	// records arrive in send order with connection enrichment applied
	for i := 1; i <= 5; i++ {
		record := buf.TryDequeue()
		if assert.NotNil(t, record, i) {
			assert.Equal(t, fmt.Sprintf("m%d", i), record.Message)
			assert.Equal(t, "A", record.Application)
			assert.Equal(t, clientID, record.Metadata["client_id"])
			assert.NotEmpty(t, record.Metadata["client_ip"])
			assert.Equal(t, "general", record.Metadata["category"])
		}
	}

	stop.Signal()
	assert.True(t, server.Stopped().Wait(defs.TestReadTimeout))
}

func TestServerCommands(t *testing.T) {
	server, _, addr, stop := newTestServer(t, 10, 10, "tsrv_cmd_")
	client := dialTestClient(t, addr)
	defer client.close()
	client.readLine(t) // greeting

	client.send(t, "CMD:PING")
	assert.Equal(t, defs.ReplyPong, client.readLine(t))

	client.send(t, "CMD:UNKNOWN")
	assert.Equal(t, defs.ReplyErrorUnknownCommand+"UNKNOWN", client.readLine(t))

	client.send(t, "CMD:HELP")
	assert.Equal(t, defs.ReplyCommands, client.readLine(t))

	client.send(t, "CMD:STATS")
	stats := client.readLine(t)
	assert.True(t, strings.HasPrefix(stats, defs.ReplyStats+"Messages:"), stats)
	assert.Contains(t, stats, "Rate:")
	assert.Contains(t, stats, "Uptime:")

	client.send(t, "CMD:BUFFER_STATS")
	bufferStats := client.readLine(t)
	assert.True(t, strings.HasPrefix(bufferStats, defs.ReplyBufferStats+"Buffer Stats - Size: 0/10"), bufferStats)
	assert.Contains(t, bufferStats, "BackPressure: false")

	stop.Signal()
	assert.True(t, server.Stopped().Wait(defs.TestReadTimeout))
}

func TestServerDisconnectCommand(t *testing.T) {
	server, _, addr, stop := newTestServer(t, 10, 10, "tsrv_disc_")
	client := dialTestClient(t, addr)
	defer client.close()
	client.readLine(t) // greeting

	client.send(t, "CMD:DISCONNECT")
	assert.Equal(t, defs.ReplyDisconnecting, client.readLine(t))

	// server closes the connection after the reply
	_, err := client.reader.ReadString('\n')
	assert.NotNil(t, err)

	stop.Signal()
	assert.True(t, server.Stopped().Wait(defs.TestReadTimeout))
}

func TestServerValidation(t *testing.T) {
	server, _, addr, stop := newTestServer(t, 10, 10, "tsrv_valid_")
	client := dialTestClient(t, addr)
	defer client.close()
	client.readLine(t) // greeting

	client.send(t, "")
	assert.Equal(t, defs.ReplyErrorEmptyMessage, client.readLine(t))

	client.send(t, strings.Repeat("x", 11000))
	assert.Equal(t, defs.ReplyErrorInvalidFormat, client.readLine(t))

	assert.Equal(t, uint64(1), server.RejectedMessages())

	stop.Signal()
	assert.True(t, server.Stopped().Wait(defs.TestReadTimeout))
}

func TestServerBufferFullReply(t *testing.T) {
	server, buf, addr, stop := newTestServer(t, 10, 10, "tsrv_full_")
	client := dialTestClient(t, addr)
	defer client.close()
	client.readLine(t) // greeting

	// a closed buffer rejects every enqueue, same as saturation without a victim
	buf.Close()
	client.send(t, "INFO|A|h|m|")
	assert.Equal(t, defs.ReplyErrorBufferFull, client.readLine(t))

	stop.Signal()
	assert.True(t, server.Stopped().Wait(defs.TestReadTimeout))
}

func TestServerAdmissionCap(t *testing.T) {
	server, _, addr, stop := newTestServer(t, 10, 1, "tsrv_cap_")
	first := dialTestClient(t, addr)
	defer first.close()
	first.readLine(t) // greeting

	// the second connection is closed without any reply
	second := dialTestClient(t, addr)
	defer second.close()
	_, err := second.reader.ReadString('\n')
	assert.NotNil(t, err)

	assert.Equal(t, 1, server.ActiveConnections())

	stop.Signal()
	assert.True(t, server.Stopped().Wait(defs.TestReadTimeout))
}

func TestServerConcurrentClients(t *testing.T) {
	server, buf, addr, stop := newTestServer(t, 100, 10, "tsrv_conc_")

	const clients = 3
	const perClient = 20
	doneChan := make(chan string, clients)
	for c := 0; c < clients; c++ {
		go func(c int) {
			client := dialTestClient(t, addr)
			defer client.close()
			client.readLine(t) // greeting
			for i := 0; i < perClient; i++ {
				client.send(t, fmt.Sprintf("INFO|app%d|h|c%d-%d|", c, c, i))
				reply := client.readLine(t)
				assert.True(t, strings.HasPrefix(reply, defs.ReplyQueued), reply)
			}
			doneChan <- fmt.Sprintf("client-%d", c)
		}(c)
	}
	for c := 0; c < clients; c++ {
		select {
		case <-doneChan:
		case <-time.After(defs.TestReadTimeout):
			t.Fatal("client did not finish")
		}
	}

	// all records queued exactly once, FIFO per client
	seen := make(map[string]bool, clients*perClient)
	lastPerClient := make(map[int]int, clients)
	for i := 0; i < clients*perClient; i++ {
		record := buf.TryDequeue()
		if !assert.NotNil(t, record, i) {
			break
		}
		assert.False(t, seen[record.ID])
		seen[record.ID] = true

		var c, sequence int
		fmt.Sscanf(record.Message, "c%d-%d", &c, &sequence)
		if last, ok := lastPerClient[c]; ok {
			assert.Greater(t, sequence, last)
		}
		lastPerClient[c] = sequence
	}
	assert.Nil(t, buf.TryDequeue())

	stop.Signal()
	assert.True(t, server.Stopped().Wait(defs.TestReadTimeout))
}
