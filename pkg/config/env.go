package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable prefix for all echoping settings
const envPrefix = "ECHOPING_"

// ICMPConfig contains defaults for the raw ICMP pinger
type ICMPConfig struct {
	Count    int
	Timeout  time.Duration
	Interval time.Duration
	TTL      int

	// Socket lifetime: "attempt" (fresh socket per request) or "run"
	SocketScope string

	// Checksum byte order: "network" or "swapped" for hosts whose kernel
	// expects the field pre-swapped
	ChecksumOrder string

	DontFragment bool
}

// PeerConfig contains defaults for the TCP/UDP echo peers
type PeerConfig struct {
	TCPAddr    string
	UDPAddr    string
	Count      int
	Timeout    time.Duration
	Interval   time.Duration
	BufferSize int

	// Raw ICMP read after a UDP timeout
	Diagnostics    bool
	DiagnosticWait time.Duration
}

// RunnerConfig contains multi-target execution settings
type RunnerConfig struct {
	Workers      int
	RateLimit    int // targets started per second, 0 for no limit
	TargetBuffer int
	ReportBuffer int
	DNSServer    string
	DNSTimeout   time.Duration
	MetricsAddr  string
}

// OutputConfig contains report sink settings
type OutputConfig struct {
	Format     string // text, jsonl or parquet
	File       string // empty means stdout (text and jsonl only)
	BufferSize int
	RowGroup   int // parquet rows buffered before a flush
}

// DefaultICMPConfig returns default ICMP configuration
func DefaultICMPConfig() ICMPConfig {
	return ICMPConfig{
		Count:         getEnvInt("ICMP_COUNT", 10),
		Timeout:       getEnvDuration("ICMP_TIMEOUT", time.Second),
		Interval:      getEnvDuration("ICMP_INTERVAL", time.Second),
		TTL:           getEnvInt("ICMP_TTL", 64),
		SocketScope:   getEnvString("ICMP_SOCKET_SCOPE", "attempt"),
		ChecksumOrder: getEnvString("ICMP_CHECKSUM_ORDER", "network"),
		DontFragment:  getEnvBool("ICMP_DONT_FRAGMENT", false),
	}
}

// DefaultPeerConfig returns default echo peer configuration
func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		TCPAddr:        getEnvString("TCP_ADDR", "127.0.0.1:11000"),
		UDPAddr:        getEnvString("UDP_ADDR", "127.0.0.1:11001"),
		Count:          getEnvInt("PEER_COUNT", 10),
		Timeout:        getEnvDuration("PEER_TIMEOUT", time.Second),
		Interval:       getEnvDuration("PEER_INTERVAL", 0),
		BufferSize:     getEnvInt("PEER_BUFFER_SIZE", 1024),
		Diagnostics:    getEnvBool("UDP_DIAGNOSTICS", true),
		DiagnosticWait: getEnvDuration("UDP_DIAGNOSTIC_WAIT", 50*time.Millisecond),
	}
}

// DefaultRunnerConfig returns default runner configuration
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Workers:      getEnvInt("WORKERS", 4),
		RateLimit:    getEnvInt("RATE_LIMIT", 0),
		TargetBuffer: getEnvInt("TARGET_BUFFER", 100),
		ReportBuffer: getEnvInt("REPORT_BUFFER", 100),
		DNSServer:    getEnvString("DNS_SERVER", ""),
		DNSTimeout:   getEnvDuration("DNS_TIMEOUT", 3*time.Second),
		MetricsAddr:  getEnvString("METRICS_ADDR", ""),
	}
}

// DefaultOutputConfig returns default output configuration
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Format:     getEnvString("OUTPUT_FORMAT", "text"),
		File:       getEnvString("OUTPUT_FILE", ""),
		BufferSize: getEnvInt("WRITER_BUFFER_SIZE", 64*1024),
		RowGroup:   getEnvInt("PARQUET_ROW_GROUP", 1000),
	}
}

// getEnvInt retrieves an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable with a default value
// Accepts values like "500ms", "1s", "2m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable with a default value
// Accepts: "true", "false", "1", "0", "yes", "no", "on", "off" (case-insensitive)
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(envPrefix + key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvString retrieves a string environment variable with a default value
func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return defaultValue
}

// Global configuration instances (initialized once at startup)
var (
	ICMP   = DefaultICMPConfig()
	Peer   = DefaultPeerConfig()
	Runner = DefaultRunnerConfig()
	Output = DefaultOutputConfig()
)

// Init loads an optional .env file and re-reads all configuration from
// the environment. Variables already set in the environment win over the
// file. Call this at application startup.
func Init(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	ICMP = DefaultICMPConfig()
	Peer = DefaultPeerConfig()
	Runner = DefaultRunnerConfig()
	Output = DefaultOutputConfig()
	return nil
}
