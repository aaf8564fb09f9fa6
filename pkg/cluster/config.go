package cluster

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Replication acknowledgment policies
const (
	PolicyFireAndForget = "fire-and-forget"
	PolicyQuorum        = "quorum"
	PolicyAll           = "all"
)

// validate is a singleton validator instance
var validate = validator.New()

// Config is the node configuration, loaded once at startup
type Config struct {
	// Node identification
	NodeID  int            `yaml:"node_id" validate:"required,min=1"`
	Members []MemberConfig `yaml:"members" validate:"required,min=1,dive"`

	// Address the dispatcher listens on (default: all interfaces, own member port)
	ListenAddr string `yaml:"listen_addr"`

	// Failure detection
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" validate:"gt=0"`
	LeaderTimeout     time.Duration `yaml:"leader_timeout" validate:"gtfield=HeartbeatInterval"`

	// Timeouts and limits
	DialTimeout  time.Duration `yaml:"dial_timeout" validate:"gt=0"`
	IOTimeout    time.Duration `yaml:"io_timeout" validate:"gt=0"`
	QueryTimeout time.Duration `yaml:"query_timeout" validate:"gt=0"`
	Workers      int           `yaml:"workers" validate:"min=1,max=256"`

	// Operations endpoint for /metrics and /health, disabled when empty
	OpsAddr  string `yaml:"ops_addr"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	Replication ReplicationConfig `yaml:"replication"`
	Storage     StorageConfig     `yaml:"storage"`
}

// MemberConfig is one entry of the membership list
type MemberConfig struct {
	ID      int    `yaml:"id" validate:"required,min=1"`
	Address string `yaml:"address" validate:"required"`
	Port    int    `yaml:"port" validate:"required,min=1,max=65535"`
}

// ReplicationConfig selects how replicated writes are acknowledged
type ReplicationConfig struct {
	Policy string `yaml:"policy" validate:"oneof=fire-and-forget quorum all"`
	Quorum int    `yaml:"quorum" validate:"min=0"`
}

// StorageConfig configures the local storage engine connection
type StorageConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns" validate:"min=0"`
}

// DefaultConfig returns the default timing and policy settings. Identity and
// membership must still be supplied.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 3 * time.Second,
		LeaderTimeout:     10 * time.Second,
		DialTimeout:       1 * time.Second,
		IOTimeout:         3 * time.Second,
		QueryTimeout:      5 * time.Second,
		Workers:           1,
		LogLevel:          "info",
		Replication: ReplicationConfig{
			Policy: PolicyFireAndForget,
		},
		Storage: StorageConfig{
			MaxConns: 4,
		},
	}
}

// Validate checks the configuration. Any failure is fatal at startup.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, formatValidationError(err))
	}

	m, err := c.Membership()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Replication.Policy == PolicyQuorum {
		peers := m.Size() - 1
		if c.Replication.Quorum < 1 || c.Replication.Quorum > peers {
			return fmt.Errorf("%w: %w (quorum %d, peers %d)", ErrInvalidConfig, ErrQuorumUnreachable, c.Replication.Quorum, peers)
		}
	}

	return nil
}

// Membership builds the membership view described by the configuration
func (c *Config) Membership() (*Membership, error) {
	nodes := make([]NodeIdentity, 0, len(c.Members))
	for _, mc := range c.Members {
		nodes = append(nodes, NodeIdentity{ID: mc.ID, Address: mc.Address, Port: mc.Port})
	}
	return NewMembership(c.NodeID, nodes)
}

// ResolveListenAddr returns the configured listen address, or all interfaces on
// this node's own member port
func (c *Config) ResolveListenAddr() string {
	if c.ListenAddr != "" {
		return c.ListenAddr
	}
	for _, mc := range c.Members {
		if mc.ID == c.NodeID {
			return net.JoinHostPort("", strconv.Itoa(mc.Port))
		}
	}
	return ""
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
