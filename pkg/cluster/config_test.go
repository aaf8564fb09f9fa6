package cluster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
node_id: 1
members:
  - {id: 1, address: 127.0.0.1, port: 5001}
  - {id: 2, address: 127.0.0.1, port: 5002}
  - {id: 3, address: 127.0.0.1, port: 5003}
heartbeat_interval: 2s
leader_timeout: 7s
ops_addr: ":9101"
replication: {policy: quorum, quorum: 2}
storage: {dsn: "postgres://u:p@127.0.0.1:5432/db"}
`

func TestParseYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1, cfg.NodeID)
	assert.Len(t, cfg.Members, 3)
	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 7*time.Second, cfg.LeaderTimeout)
	assert.Equal(t, PolicyQuorum, cfg.Replication.Policy)
	assert.Equal(t, 2, cfg.Replication.Quorum)

	// Unset fields keep their defaults
	assert.Equal(t, time.Second, cfg.DialTimeout)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, ":5001", cfg.ResolveListenAddr())
}

func TestParseYAMLUnknownField(t *testing.T) {
	_, err := ParseYAML([]byte("node_id: 1\nbogus: true\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseLinesImplicitIDs(t *testing.T) {
	input := "2\n127.0.0.1 5001\n\n# comment\n127.0.0.1 5002\n127.0.0.1 5003\n"
	cfg, err := ParseLines(strings.NewReader(input))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2, cfg.NodeID)
	require.Len(t, cfg.Members, 3)
	for i, m := range cfg.Members {
		assert.Equal(t, i+1, m.ID)
		assert.Equal(t, 5001+i, m.Port)
	}
	assert.Equal(t, PolicyFireAndForget, cfg.Replication.Policy)
}

func TestParseLinesExplicitIDs(t *testing.T) {
	input := "10\n10 10.0.0.1 6000\n20 10.0.0.2 6000\n"
	cfg, err := ParseLines(strings.NewReader(input))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	m, err := cfg.Membership()
	require.NoError(t, err)
	assert.Equal(t, 20, m.HighestID())
	assert.Equal(t, "10.0.0.2:6000", m.Higher()[0].Addr())
}

func TestParseLinesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"id not a number", "one\n127.0.0.1 5001\n"},
		{"bad port", "1\n127.0.0.1 http\n"},
		{"too many fields", "1\n1 127.0.0.1 5001 extra\n"},
		{"bad member id", "1\nx 127.0.0.1 5001\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLines(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.NodeID = 1
	cfg.Members = []MemberConfig{
		{ID: 1, Address: "127.0.0.1", Port: 5001},
		{ID: 2, Address: "127.0.0.1", Port: 5002},
		{ID: 3, Address: "127.0.0.1", Port: 5003},
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing node id", func(c *Config) { c.NodeID = 0 }, ErrInvalidConfig},
		{"self not member", func(c *Config) { c.NodeID = 7 }, ErrSelfNotMember},
		{"duplicate ids", func(c *Config) { c.Members[2].ID = 2 }, ErrDuplicateNodeID},
		{"bad port", func(c *Config) { c.Members[0].Port = 70000 }, ErrInvalidConfig},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, ErrInvalidConfig},
		{"timeout below interval", func(c *Config) { c.LeaderTimeout = time.Second }, ErrInvalidConfig},
		{"unknown policy", func(c *Config) { c.Replication.Policy = "majority" }, ErrInvalidConfig},
		{"quorum zero", func(c *Config) { c.Replication.Policy = PolicyQuorum }, ErrQuorumUnreachable},
		{"quorum too large", func(c *Config) {
			c.Replication.Policy = PolicyQuorum
			c.Replication.Quorum = 3
		}, ErrQuorumUnreachable},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o600))
	cfg, err := LoadConfig(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 3, len(cfg.Members))

	txtPath := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("1\n127.0.0.1 5001\n127.0.0.1 5002\n"), 0o600))
	cfg, err = LoadConfig(txtPath)
	require.NoError(t, err)
	assert.Equal(t, 2, len(cfg.Members))

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	badPath := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(badPath, []byte("1\n"), 0o600))
	_, err = LoadConfig(badPath)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
