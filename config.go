package netcore

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// listenBacklog is the pending-connection backlog enforced on the TCP
// listener via an explicit second listen(2) call (see setupTCPListener);
// UDP is connectionless and has no backlog.
const listenBacklog = 64

// initialRegistryCapacity is the starting size of the connection registry.
const initialRegistryCapacity = 1024

// initialBufferSize is the starting size of a connection's circular
// buffers.
const initialBufferSize = 4096

// Config holds the static configuration consumed by Init. Fields mirror
// the subset of bloomd's config that bears on the networking core; command
// parsing, Bloom-filter storage, and daemonisation settings are the host
// program's concern, not this package's.
type Config struct {
	// TCPPort is the port the TCP command listener binds on INADDR_ANY.
	TCPPort int `yaml:"tcp_port"`

	// UDPPort is the port the (unread) UDP listener binds on INADDR_ANY.
	UDPPort int `yaml:"udp_port"`

	// WorkerThreads is the size of the leader/followers pool.
	WorkerThreads int `yaml:"worker_threads"`

	// InitialBufferSize overrides the per-connection circular buffer's
	// starting capacity. Zero means initialBufferSize.
	InitialBufferSize int `yaml:"initial_buffer_size"`
}

// DefaultConfig returns the configuration used when a host program does
// not load one from disk.
func DefaultConfig() *Config {
	return &Config{
		TCPPort:           8673,
		UDPPort:           8674,
		WorkerThreads:     4,
		InitialBufferSize: initialBufferSize,
	}
}

// LoadConfig reads a YAML configuration file into a Config. Keys the file
// omits keep their DefaultConfig values; a non-positive
// initial_buffer_size is replaced by initialBufferSize and a non-positive
// worker_threads by 1.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "netcore: read config")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "netcore: parse config")
	}
	if cfg.InitialBufferSize <= 0 {
		cfg.InitialBufferSize = initialBufferSize
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 1
	}
	return cfg, nil
}
