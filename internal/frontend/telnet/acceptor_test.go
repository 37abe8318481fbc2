package telnet

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/roomserver/internal/broadcast"
	"github.com/cory-johannsen/roomserver/internal/config"
	"github.com/cory-johannsen/roomserver/internal/engine"
	"github.com/cory-johannsen/roomserver/internal/room"
	"github.com/cory-johannsen/roomserver/internal/testutil"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
	return nil
}

func (c *callLog) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callLog) AddUserToRoom(userID, username string) error {
	return c.add(fmt.Sprintf("join(%s,%s)", userID, username))
}

func (c *callLog) RemoveUserFromRoom(userID string) error {
	return c.add(fmt.Sprintf("leave(%s)", userID))
}

func (c *callLog) Command(userID, text string) error {
	return c.add(fmt.Sprintf("command(%s,%s)", userID, text))
}

func (c *callLog) ChatEvent(username, content string) error {
	return c.add(fmt.Sprintf("chat(%s,%s)", username, content))
}

func startAcceptor(t *testing.T) (*Acceptor, *room.Registry, *callLog) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	calls := &callLog{}
	reg := room.NewRegistry()
	router := room.NewRouter("r1", reg, calls, calls, room.LeaveMessageOnly, logger)

	cfg := config.TelnetConfig{
		Host:         "127.0.0.1",
		Port:         0, // random port
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	acc := NewAcceptor(cfg, room.SessionServer{Router: router, InboxSize: 8}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()
	t.Cleanup(func() {
		acc.Stop()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("acceptor did not stop in time")
		}
	})

	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond)
	return acc, reg, calls
}

// dialAndAck connects, skips the negotiation bytes and returns the ack line.
func dialAndAck(t *testing.T, addr string) (net.Conn, *bufio.Reader, string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	r := bufio.NewReader(conn)
	neg := make([]byte, 3)
	_, err = io.ReadFull(r, neg)
	require.NoError(t, err)
	require.Equal(t, []byte{IAC, WILL, OptSuppressGoAhead}, neg)

	ack, err := r.ReadString('\n')
	require.NoError(t, err)
	return conn, r, strings.TrimRight(ack, "\r\n")
}

func TestAcceptor_RoutesFrames(t *testing.T) {
	acc, reg, calls := startAcceptor(t)

	conn, _, ack := dialAndAck(t, acc.Addr())
	defer conn.Close()
	assert.Equal(t, `ack,{"version":[1]}`, ack)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := conn.Write([]byte("roomHello,r1,{\"userId\":\"u1\",\"username\":\"Alice\"}\r\n" +
		"room,r1,{\"userId\":\"u1\",\"username\":\"Alice\",\"content\":\"hi\"}\r\n" +
		"roomGoodbye,r1,{\"userId\":\"u1\"}\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(calls.Calls()) == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		"join(u1,Alice)",
		"command(u1,look)",
		"chat(Alice,hi)",
		"leave(u1)",
	}, calls.Calls())

	conn.Close()
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAcceptor_MultipleClients(t *testing.T) {
	acc, reg, _ := startAcceptor(t)

	const numClients = 3
	conns := make([]net.Conn, numClients)
	for i := range conns {
		conn, _, ack := dialAndAck(t, acc.Addr())
		assert.Equal(t, `ack,{"version":[1]}`, ack)
		conns[i] = conn
	}
	require.Eventually(t, func() bool { return reg.Len() == numClients }, 2*time.Second, 10*time.Millisecond)

	ids := make(map[string]bool)
	for c := range reg.Sessions() {
		ids[c.ID()] = true
	}
	assert.Len(t, ids, numClients)

	for _, conn := range conns {
		conn.Close()
	}
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAcceptor_StopClosesSessions(t *testing.T) {
	acc, reg, _ := startAcceptor(t)

	conn, r, _ := dialAndAck(t, acc.Addr())
	defer conn.Close()
	require.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	acc.Stop()
	assert.False(t, acc.IsRunning())
	assert.Equal(t, 0, reg.Len())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := r.ReadByte()
	assert.Error(t, err)
}

func TestAcceptor_EngineRoundTrip(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := room.NewRegistry()
	out := broadcast.New(reg, logger)
	eng, err := engine.New(engine.DefaultRoom(), out, logger)
	require.NoError(t, err)
	router := room.NewRouter("recroom", reg, eng, out, room.ReapOnClose, logger)

	cfg := config.TelnetConfig{Host: "127.0.0.1", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	acc := NewAcceptor(cfg, room.SessionServer{Router: router, InboxSize: 8}, logger)
	go func() { _ = acc.ListenAndServe() }()
	t.Cleanup(acc.Stop)
	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond)

	c := testutil.NewTelnetClient(t, acc.Addr())
	assert.Equal(t, `ack,{"version":[1]}`, c.ReadFrame(2*time.Second))

	c.Send(`roomHello,recroom,{"userId":"u1","username":"Alice"}`)
	loc := c.ReadUntil(`"type":"location"`, 2*time.Second)
	assert.True(t, strings.HasPrefix(loc, "player,u1,"), loc)

	c.Send(`room,recroom,{"userId":"u1","content":"/examine jukebox"}`)
	assert.Contains(t, c.ReadUntil(`"type":"event"`, 2*time.Second), "jukebox")

	c.Close()
	require.Eventually(t, func() bool {
		return reg.Len() == 0 && eng.Roster().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAcceptor_SessionLogsCarryConnFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	reg := room.NewRegistry()
	calls := &callLog{}
	router := room.NewRouter("r1", reg, calls, calls, room.LeaveMessageOnly, logger)

	cfg := config.TelnetConfig{Host: "127.0.0.1", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	acc := NewAcceptor(cfg, room.SessionServer{Router: router, InboxSize: 8}, logger)
	go func() { _ = acc.ListenAndServe() }()
	t.Cleanup(acc.Stop)
	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond)

	conn, _, _ := dialAndAck(t, acc.Addr())
	require.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool {
		return logs.FilterMessage("session ended cleanly").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	connected := logs.FilterMessage("client connected").All()
	require.Len(t, connected, 1)
	fields := connected[0].ContextMap()
	assert.Equal(t, "telnet", fields["transport"])
	assert.NotEmpty(t, fields["conn_id"])
	assert.NotEmpty(t, fields["remote_addr"])
}

func TestAcceptor_StopBeforeListen(t *testing.T) {
	acc := NewAcceptor(config.TelnetConfig{Host: "127.0.0.1"}, nil, zaptest.NewLogger(t))
	acc.Stop()

	assert.NoError(t, acc.ListenAndServe())
	assert.False(t, acc.IsRunning())
}
