package cluster

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads the configuration file at path. Files ending in .yaml or .yml
// are decoded as YAML; anything else is read in the line format. Defaults from
// DefaultConfig fill fields the file leaves unset, and the result is validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	default:
		cfg, err = ParseLines(bytes.NewReader(data))
	}
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseYAML decodes a YAML configuration over the defaults
func ParseYAML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ParseLines reads the line format: the first line holds this node's id, each
// following line describes one member as "address port" (id taken from line
// order, starting at 1) or "id address port". Blank lines and lines starting
// with '#' are ignored.
func ParseLines(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	scanner := bufio.NewScanner(r)

	lineNo := 0
	haveSelf := false
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !haveSelf {
			id, err := strconv.Atoi(line)
			if err != nil {
				return Config{}, fmt.Errorf("%w: line %d: node id %q is not a number", ErrInvalidConfig, lineNo, line)
			}
			cfg.NodeID = id
			haveSelf = true
			continue
		}

		member, err := parseMemberLine(strings.Fields(line), len(cfg.Members)+1)
		if err != nil {
			return Config{}, fmt.Errorf("%w: line %d: %w", ErrInvalidConfig, lineNo, err)
		}
		cfg.Members = append(cfg.Members, member)
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !haveSelf {
		return Config{}, fmt.Errorf("%w: missing node id line", ErrInvalidConfig)
	}

	return cfg, nil
}

func parseMemberLine(fields []string, implicitID int) (MemberConfig, error) {
	var idField, addr, portField string
	switch len(fields) {
	case 2:
		idField, addr, portField = strconv.Itoa(implicitID), fields[0], fields[1]
	case 3:
		idField, addr, portField = fields[0], fields[1], fields[2]
	default:
		return MemberConfig{}, fmt.Errorf("expected \"address port\" or \"id address port\", got %d fields", len(fields))
	}

	id, err := strconv.Atoi(idField)
	if err != nil {
		return MemberConfig{}, fmt.Errorf("member id %q is not a number", idField)
	}
	port, err := strconv.Atoi(portField)
	if err != nil {
		return MemberConfig{}, fmt.Errorf("port %q is not a number", portField)
	}

	return MemberConfig{ID: id, Address: addr, Port: port}, nil
}
