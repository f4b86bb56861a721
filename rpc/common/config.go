package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Worker endpoints
// --------------------------------------------------------------------------

// Endpoint is a parsed listen or dial address of a worker, e.g. "unix:/tmp/w.sock"
// or "tcp:localhost:8080". The zero Endpoint means stdin/stdout.
type Endpoint struct {
	Network string // "unix" or "tcp", empty for stdio
	Address string
}

// ParseEndpoint parses "<network>:<address>". An empty string is the stdio endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" || s == "stdio" {
		return Endpoint{}, nil
	}
	network, address, ok := strings.Cut(s, ":")
	if !ok || address == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q, expected unix:<path> or tcp:<host:port>", s)
	}
	switch network {
	case "unix", "tcp":
		return Endpoint{Network: network, Address: address}, nil
	default:
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: unknown network %q", s, network)
	}
}

// IsStdio reports whether the endpoint is stdin/stdout
func (e Endpoint) IsStdio() bool {
	return e.Network == ""
}

func (e Endpoint) String() string {
	if e.IsStdio() {
		return "stdio"
	}
	return e.Network + ":" + e.Address
}

// --------------------------------------------------------------------------
// Worker configuration struct
// --------------------------------------------------------------------------

// WorkerConfig holds the configuration of a worker process.
type WorkerConfig struct {
	// Backend hosted by the worker
	Backend string
	Name    string // resource name of the hosted adapter
	DataDir string
	Listen  Endpoint
	ShardID uint64

	// Protocol
	Serializer  string
	MaxInFlight int

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *WorkerConfig) String() string {
	var sb strings.Builder
	addSection, addField := formatter(&sb)

	addSection("Worker")
	addField("Backend", c.Backend)
	addField("Resource Name", c.Name)
	addField("Data Directory", c.DataDir)
	addField("Shard", strconv.FormatUint(c.ShardID, 10))
	addField("Endpoint", c.Listen.String())

	addSection("Protocol")
	addField("Serializer", c.Serializer)
	addField("Max In Flight", strconv.Itoa(c.MaxInFlight))

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	return sb.String()
}

// --------------------------------------------------------------------------
// Bench configuration struct
// --------------------------------------------------------------------------

// BenchConfig holds the configuration of a benchmark run.
type BenchConfig struct {
	Backends []string

	// Workload
	Docs      int
	BatchSize int
	FindIDs   int
	Pattern   string
	MinAge    int
	Seed      int64

	// Resources
	DataDir        string
	RandomizeNames bool
	Shards         int
	Serializer     string

	// Output
	Metrics  bool
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *BenchConfig) String() string {
	var sb strings.Builder
	addSection, addField := formatter(&sb)

	addSection("Workload")
	addField("Documents", strconv.Itoa(c.Docs))
	addField("Batch Size", strconv.Itoa(c.BatchSize))
	addField("Find IDs", strconv.Itoa(c.FindIDs))
	addField("Pattern", strconv.Quote(c.Pattern))
	addField("Min Age", strconv.Itoa(c.MinAge))
	addField("Seed", strconv.FormatInt(c.Seed, 10))

	addSection("Resources")
	addField("Data Directory", c.DataDir)
	addField("Randomize Names", strconv.FormatBool(c.RandomizeNames))
	addField("Shards", strconv.Itoa(c.Shards))
	addField("Worker Serializer", c.Serializer)

	addSection("Output")
	addField("Dump Metrics", strconv.FormatBool(c.Metrics))
	addField("Log Level", c.LogLevel)

	addSection("Backends")
	for i, b := range c.Backends {
		addField(strconv.Itoa(i), b)
	}
	return sb.String()
}

// formatter returns the helpers for consistent section and field formatting
func formatter(sb *strings.Builder) (addSection func(string), addField func(string, string)) {
	addSection = func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField = func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}
	return addSection, addField
}
