// Package config loads the relay's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level relay configuration.
type Config struct {
	// PublishAddress is the listen address for publisher (ANNOUNCE/
	// RECORD) connections, e.g. ":8554".
	PublishAddress string `yaml:"publishAddress"`

	// ClientAddress is the listen address for subscriber (DESCRIBE/
	// PLAY) connections. May equal PublishAddress.
	ClientAddress string `yaml:"clientAddress"`

	// AdminAddress, if non-empty, serves the read-only status surface.
	AdminAddress string `yaml:"adminAddress"`

	// RTPPortStart/RTPPortCount define the Port Pool's range.
	RTPPortStart int `yaml:"rtpPortStart"`
	RTPPortCount int `yaml:"rtpPortCount"`

	// KeepaliveInterval is how long a subscriber may stay silent
	// before its session is torn down.
	KeepaliveInterval time.Duration `yaml:"keepaliveInterval"`

	// MountSweepInterval is how often stalled subscriber wrappers
	// (publisher gone) are garbage-collected.
	MountSweepInterval time.Duration `yaml:"mountSweepInterval"`

	// Auth, if set, requires Basic credentials on every subscriber
	// request and on every publisher request except OPTIONS.
	Auth *AuthConfig `yaml:"auth"`

	// RequestsPerSecond/RequestBurst throttle RTSP request handling
	// per connection. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	RequestBurst      int     `yaml:"requestBurst"`

	// Multicast, if set, enables supplemental multicast replication:
	// every announced mount is assigned a fresh multicast address drawn
	// sequentially from BaseAddress.
	Multicast *MulticastConfig `yaml:"multicast"`
}

// MulticastConfig configures the relay-wide multicast address pool
// handed out to newly announced mounts.
type MulticastConfig struct {
	// BaseAddress is the first "ip:port" assigned, e.g. "239.0.1.0:9000".
	// Later mounts get BaseAddress with the IP's last octet incremented.
	BaseAddress string `yaml:"baseAddress"`

	// SourceIP, if set, pins the multicast-capable interface joined for
	// replication. Left empty, the interface is chosen automatically.
	SourceIP string `yaml:"sourceIP"`
}

// AuthConfig holds the single fixed Basic credential pair the relay
// checks incoming requests against.
type AuthConfig struct {
	User  string `yaml:"user"`
	Pass  string `yaml:"pass"`
	Realm string `yaml:"realm"`
}

// Default returns a Config with the reference defaults applied.
func Default() Config {
	return Config{
		PublishAddress:     ":8554",
		ClientAddress:      ":8554",
		RTPPortStart:       10000,
		RTPPortCount:       10000,
		KeepaliveInterval:  60 * time.Second,
		MountSweepInterval: time.Second,
	}
}

// Load reads and parses the YAML file at path, applying Default()
// first so unset fields keep the reference values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}
