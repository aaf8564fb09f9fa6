package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-replicator/pkg/protocol"
	"github.com/dd0wney/cluso-replicator/pkg/replication"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5001", "Node address (host:port)")
	query := flag.String("query", "", "Statement to send; starts the interactive UI when empty")
	timeout := flag.Duration("timeout", 10*time.Second, "Time to wait for the node's response")
	flag.Parse()

	c := newClient(*addr, *timeout)

	if *query != "" {
		resp, err := c.Send(context.Background(), *query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replicator-client: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(resp)
		return
	}

	p := tea.NewProgram(initialModel(c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "replicator-client: %v\n", err)
		os.Exit(1)
	}
}

// client sends statements to one node as an external client (origin 0)
type client struct {
	addr      string
	timeout   time.Duration
	transport *replication.Transport
}

func newClient(addr string, timeout time.Duration) *client {
	return &client{
		addr:      addr,
		timeout:   timeout,
		transport: replication.NewTransport(timeout, timeout),
	}
}

// Send encodes stmt as a client QUERY packet and returns the node's response
func (c *client) Send(ctx context.Context, stmt string) (string, error) {
	pkt, err := protocol.Encode(protocol.KindQuery, protocol.ClientOrigin, stmt)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.transport.Exchange(ctx, c.addr, pkt)
}
