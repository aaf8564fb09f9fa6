package logging

import (
	"time"

	"go.uber.org/zap"
)

// Common field constructors
func String(key, value string) Field {
	return zap.String(key, value)
}

func Int(key string, value int) Field {
	return zap.Int(key, value)
}

func Uint64(key string, value uint64) Field {
	return zap.Uint64(key, value)
}

func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

func Duration(key string, value time.Duration) Field {
	return zap.String(key, value.String())
}

func Error(err error) Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", err.Error())
}

// Component names the subsystem emitting the entry
func Component(name string) Field {
	return String("component", name)
}

// NodeID is the id of the node doing the logging
func NodeID(id int) Field {
	return Int("node_id", id)
}

// Peer is the id of the remote cluster member involved
func Peer(id int) Field {
	return Int("peer_id", id)
}

func Origin(id int) Field {
	return Int("origin_id", id)
}

func Leader(id int) Field {
	return Int("leader_id", id)
}

func Kind(kind string) Field {
	return String("kind", kind)
}

func Addr(addr string) Field {
	return String("addr", addr)
}

func RequestID(id string) Field {
	return String("request_id", id)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}
