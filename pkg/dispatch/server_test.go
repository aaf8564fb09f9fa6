package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-replicator/pkg/cluster"
	"github.com/dd0wney/cluso-replicator/pkg/protocol"
	"github.com/dd0wney/cluso-replicator/pkg/replication"
)

// sendPacket sends pkt to addr the way a client does and returns the response
func sendPacket(t *testing.T, addr string, pkt protocol.Packet) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, protocol.WritePacket(conn, pkt))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(resp)
}

type testNode struct {
	server      *Server
	executor    *fakeExecutor
	broadcaster *replication.Broadcaster
	addr        string
	done        chan error
}

// startCluster runs n dispatchers on loopback listeners with real broadcasters
func startCluster(t *testing.T, n int) []*testNode {
	t.Helper()
	return startClusterWithPolicy(t, n, replication.FireAndForget{})
}

func startClusterWithPolicy(t *testing.T, n int, policy replication.AckPolicy) []*testNode {
	t.Helper()

	listeners := make([]net.Listener, n)
	identities := make([]cluster.NodeIdentity, n)
	for i := range listeners {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = ln
		identities[i] = cluster.NodeIdentity{ID: i + 1, Address: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
	}

	ctx, cancel := context.WithCancel(context.Background())
	nodes := make([]*testNode, n)
	for i := range nodes {
		m, err := cluster.NewMembership(i+1, identities)
		require.NoError(t, err)

		leadership := cluster.NewLeadership(i+1, m.HighestID())
		b := replication.NewBroadcaster(m, replication.NewTransport(time.Second, 2*time.Second), replication.WithPolicy(policy))
		exec := &fakeExecutor{}
		srv := NewServer(Config{NodeID: i + 1, QueryTimeout: time.Second, IOTimeout: 2 * time.Second}, leadership, exec, b)

		node := &testNode{server: srv, executor: exec, broadcaster: b, addr: identities[i].Addr(), done: make(chan error, 1)}
		go func(ln net.Listener) { node.done <- srv.Serve(ctx, ln) }(listeners[i])
		nodes[i] = node

		t.Cleanup(leadership.Close)
	}

	t.Cleanup(func() {
		cancel()
		for _, node := range nodes {
			<-node.done
			node.broadcaster.Drain()
		}
	})
	return nodes
}

func TestClientInsertReplicatesToPeers(t *testing.T) {
	nodes := startCluster(t, 3)
	stmt := "INSERT INTO accounts VALUES (42, 'bob')"

	resp := sendPacket(t, nodes[0].addr, protocol.MustEncode(protocol.KindQuery, protocol.ClientOrigin, stmt))

	assert.Contains(t, resp, "node 1")
	assert.Equal(t, "OK: executed on node 1.\n(replication dispatched to 2 peers)", resp)

	for _, peer := range nodes[1:] {
		require.Eventually(t, func() bool { return len(peer.executor.Statements()) == 1 }, 2*time.Second, 10*time.Millisecond)
	}

	// Replicated copies carry origin 1, so nobody forwards them again
	time.Sleep(100 * time.Millisecond)
	for _, node := range nodes {
		assert.Equal(t, []string{stmt}, node.executor.Statements())
	}
}

func TestServeCorruptPacket(t *testing.T) {
	nodes := startCluster(t, 1)
	pkt := protocol.MustEncode(protocol.KindQuery, 0, "DELETE FROM t")
	pkt.Checksum = 1

	resp := sendPacket(t, nodes[0].addr, pkt)

	assert.Equal(t, "ERROR: checksum mismatch", resp)
	assert.Empty(t, nodes[0].executor.Statements())
}

func TestConcurrentClientWritesUnderQuorum(t *testing.T) {
	nodes := startClusterWithPolicy(t, 2, replication.Quorum{N: 1})

	responses := make([]string, len(nodes))
	start := time.Now()
	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stmt := fmt.Sprintf("INSERT INTO t VALUES (%d)", i+1)
			responses[i] = sendPacket(t, node.addr, protocol.MustEncode(protocol.KindQuery, protocol.ClientOrigin, stmt))
		}()
	}
	wg.Wait()

	// Each node takes the other's replicated write while its own waits for the ack
	assert.Less(t, time.Since(start), time.Second)
	for i, resp := range responses {
		assert.Equal(t, fmt.Sprintf("OK: executed on node %d.\n(replication acknowledged by 1 of 1 peers)", i+1), resp)
	}
	for _, node := range nodes {
		assert.Len(t, node.executor.Statements(), 2)
	}
}

func TestServeNegativeOriginIsMalformed(t *testing.T) {
	nodes := startCluster(t, 1)

	data, err := protocol.MustEncode(protocol.KindQuery, 0, "DELETE FROM t").MarshalBinary()
	require.NoError(t, err)
	binary.BigEndian.PutUint32(data[4:8], 0xFFFFFFFF)

	conn, err := net.DialTimeout("tcp", nodes[0].addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Write(data)
	require.NoError(t, err)

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "ERROR: malformed packet", string(resp))
	assert.Empty(t, nodes[0].executor.Statements())
}

func TestServeShortPacketGetsNoResponse(t *testing.T) {
	nodes := startCluster(t, 1)

	conn, err := net.DialTimeout("tcp", nodes[0].addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("SELECT 1"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, resp)
	assert.Empty(t, nodes[0].executor.Statements())
}

func TestServeWorkerPool(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	leadership := cluster.NewLeadership(1, 1)
	defer leadership.Close()
	exec := &fakeExecutor{}
	srv := NewServer(Config{NodeID: 1, QueryTimeout: time.Second, IOTimeout: time.Second, Workers: 4},
		leadership, exec, &fakeReplicator{peers: 0})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := sendPacket(t, ln.Addr().String(), protocol.MustEncode(protocol.KindQuery, 2, "UPDATE t SET x = x + 1"))
			assert.Equal(t, "OK: executed on node 1.", resp)
		}()
	}
	wg.Wait()

	cancel()
	err = <-done
	assert.True(t, errors.Is(err, ErrServerClosed))
	assert.Len(t, exec.Statements(), 20)
}

func TestServeAfterClose(t *testing.T) {
	leadership := cluster.NewLeadership(1, 1)
	defer leadership.Close()
	srv := NewServer(Config{NodeID: 1, QueryTimeout: time.Second, IOTimeout: time.Second}, leadership, &fakeExecutor{}, &fakeReplicator{})
	require.NoError(t, srv.Close())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(context.Background(), ln), ErrServerClosed)
	assert.Nil(t, srv.Addr())
}
