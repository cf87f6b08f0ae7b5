package common

import (
	"fmt"
	"strconv"
	"strings"
)

// configWriter renders the aligned section tables printed by the cli
type configWriter struct {
	sb strings.Builder
}

func (w *configWriter) addSection(title string) {
	w.sb.WriteString("\n")
	w.sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func (w *configWriter) addField(name, value string) {
	w.sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the server.
type ServerConfig struct {
	// Transport and endpoint the server listens on
	Transport  string
	Endpoint   string
	Serializer string

	// Legacy http api, only used with the http transport
	HTTPPrefix string

	// Separate http endpoint serving /metrics, empty to disable
	MetricsEndpoint string

	// Storage
	DBPath   string
	ReadOnly bool

	// Access control
	AnonPerms  []string
	AdminUser  string
	AdminToken string

	// Shutdown behaviour. FastExit skips draining queued requests.
	FastExit bool

	// Logging configuration
	LogLevel string
}

// DefaultAnonPerms are granted to unauthenticated sessions
var DefaultAnonPerms = []string{"@read", "@report"}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var w configWriter

	w.addSection("RPC Server")
	w.addField("Transport", c.Transport)
	w.addField("Endpoint", c.Endpoint)
	w.addField("Serializer", c.Serializer)
	if c.Transport == "http" {
		w.addField("HTTP Prefix", orNone(c.HTTPPrefix))
	}
	w.addField("Metrics Endpoint", orNone(c.MetricsEndpoint))
	w.addField("Fast Exit", strconv.FormatBool(c.FastExit))

	w.addSection("Storage")
	w.addField("Database", c.DBPath)
	w.addField("Read Only", strconv.FormatBool(c.ReadOnly))

	w.addSection("Access")
	w.addField("Anonymous Permissions", orNone(strings.Join(c.AnonPerms, ",")))
	w.addField("Admin User", orNone(c.AdminUser))

	w.addSection("Logging")
	w.addField("Log Level", c.LogLevel)

	return w.sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport     string
	Endpoint      string
	Serializer    string
	Username      string
	Token         string
	Become        string
	TimeoutSecond int
	RetryCount    int
	PoolSize      int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var w configWriter

	w.addSection("Client Configuration")
	w.addField("Transport", c.Transport)
	w.addField("Endpoint", c.Endpoint)
	w.addField("Serializer", c.Serializer)
	w.addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	w.addField("Retry Count", strconv.Itoa(c.RetryCount))
	w.addField("Pool Size", strconv.Itoa(max(1, c.PoolSize)))

	w.addSection("Identity")
	w.addField("Username", orNone(c.Username))
	if c.Token != "" {
		w.addField("Token", "********")
	} else {
		w.addField("Token", "none")
	}
	w.addField("Become", orNone(c.Become))

	return w.sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
