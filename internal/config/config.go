// Package config loads the node's configuration entirely from
// environment variables, grounded on
// original_source/utils/config.py's load_config, extended with the
// client/server/publisher tunables a full mesh node needs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jabolina/sensor-mesh/internal/transport"
)

var allowedLogLevels = map[string]struct{}{
	"DEBUG":    {},
	"INFO":     {},
	"WARNING":  {},
	"ERROR":    {},
	"CRITICAL": {},
}

// Peer is a bootstrap seed: a host:port pair whose node_id is not yet
// known.
type Peer struct {
	Host string
	Port int
}

// Config is the node's fully-validated configuration.
type Config struct {
	NodeID         string
	Host           string
	Port           int
	BootstrapPeers []Peer
	LogLevel       string
	LogFile        string

	ClientConfig    transport.ClientConfig
	ServerConfig    transport.ServerConfig
	PublishInterval time.Duration
	DebugDumpInterval time.Duration
}

// Load reads and validates every required and optional variable.
// Invalid or missing required values return a wrapped error; this is
// always fatal at startup.
func Load() (Config, error) {
	nodeID, err := requireEnv("NODE_ID")
	if err != nil {
		return Config{}, err
	}
	host, err := requireEnv("HOST")
	if err != nil {
		return Config{}, err
	}
	rawPort, err := requireEnv("PORT")
	if err != nil {
		return Config{}, err
	}
	port, err := parsePort(rawPort)
	if err != nil {
		return Config{}, err
	}

	logLevel, err := requireEnv("LOG_LEVEL")
	if err != nil {
		return Config{}, err
	}
	logLevel = strings.ToUpper(logLevel)
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return Config{}, errors.Errorf("invalid LOG_LEVEL: %s", logLevel)
	}

	logFile := os.Getenv("LOG_FILE")

	peers, err := parsePeers(os.Getenv("BOOTSTRAP_PEERS"))
	if err != nil {
		return Config{}, err
	}

	clientCfg := transport.DefaultClientConfig()
	if err := overrideClientConfig(&clientCfg); err != nil {
		return Config{}, err
	}

	serverCfg := transport.DefaultServerConfig(host, port)
	if err := overrideServerConfig(&serverCfg); err != nil {
		return Config{}, err
	}

	publishInterval, err := envDuration("PUBLISH_INTERVAL_MS", 200*time.Millisecond)
	if err != nil {
		return Config{}, err
	}

	debugDump, err := envDuration("DEBUG_DUMP_INTERVAL_MS", 0)
	if err != nil {
		return Config{}, err
	}

	return Config{
		NodeID:             nodeID,
		Host:               host,
		Port:               port,
		BootstrapPeers:     peers,
		LogLevel:           logLevel,
		LogFile:            logFile,
		ClientConfig:       clientCfg,
		ServerConfig:       serverCfg,
		PublishInterval:    publishInterval,
		DebugDumpInterval:  debugDump,
	}, nil
}

func requireEnv(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", errors.Errorf("missing required env var: %s", name)
	}
	return v, nil
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "PORT must be an integer, got: %s", raw)
	}
	if port <= 0 || port >= 65536 {
		return 0, errors.Errorf("invalid PORT value: %d", port)
	}
	return port, nil
}

func parsePeers(raw string) ([]Peer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	items := strings.Split(raw, ",")
	peers := make([]Peer, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		hostPort := strings.SplitN(item, ":", 2)
		if len(hostPort) != 2 {
			return nil, errors.Errorf("invalid peer format: %s (expected host:port)", item)
		}
		port, err := parsePort(strings.TrimSpace(hostPort[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid peer format: %s", item)
		}
		peers = append(peers, Peer{Host: strings.TrimSpace(hostPort[0]), Port: port})
	}
	return peers, nil
}

func overrideClientConfig(cfg *transport.ClientConfig) error {
	var err error
	if cfg.ConnectTimeout, err = envDuration("CONNECT_TIMEOUT_MS", cfg.ConnectTimeout); err != nil {
		return err
	}
	if cfg.SendTimeout, err = envDuration("SEND_TIMEOUT_MS", cfg.SendTimeout); err != nil {
		return err
	}
	if cfg.MaxFrameSize, err = envInt("MAX_FRAME_SIZE_BYTES", cfg.MaxFrameSize); err != nil {
		return err
	}
	if cfg.BackoffInitial, err = envDuration("BACKOFF_INITIAL_MS", cfg.BackoffInitial); err != nil {
		return err
	}
	if cfg.BackoffMax, err = envDuration("BACKOFF_MAX_MS", cfg.BackoffMax); err != nil {
		return err
	}
	if raw, ok := os.LookupEnv("BACKOFF_MODE"); ok {
		switch strings.ToLower(raw) {
		case "linear":
			cfg.BackoffMode = transport.BackoffLinear
		case "exponential":
			cfg.BackoffMode = transport.BackoffExponential
		default:
			return errors.Errorf("invalid BACKOFF_MODE: %s", raw)
		}
	}
	if cfg.IdleProbeInterval, err = envDuration("IDLE_PROBE_INTERVAL_MS", cfg.IdleProbeInterval); err != nil {
		return err
	}
	if raw, ok := os.LookupEnv("TCP_KEEPALIVE"); ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.Wrap(err, "invalid TCP_KEEPALIVE")
		}
		cfg.TCPKeepAlive = b
	}
	return nil
}

func overrideServerConfig(cfg *transport.ServerConfig) error {
	var err error
	if cfg.RecvTimeout, err = envDuration("RECV_TIMEOUT_MS", cfg.RecvTimeout); err != nil {
		return err
	}
	if cfg.AcceptTimeout, err = envDuration("ACCEPT_TIMEOUT_MS", cfg.AcceptTimeout); err != nil {
		return err
	}
	if cfg.MaxFrameSize, err = envInt("MAX_FRAME_SIZE_BYTES", cfg.MaxFrameSize); err != nil {
		return err
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
