package util

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/serializer"
	"github.com/ValentinKolb/hashserv/rpc/transport"
	"github.com/ValentinKolb/hashserv/rpc/transport/http"
	"github.com/ValentinKolb/hashserv/rpc/transport/tcp"
	"github.com/ValentinKolb/hashserv/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (HASHSERV_ENDPOINT, ...)
	EnvPrefix = "hashserv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read HASHSERV_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// InitLogging sets the level of all loggers to the configured log-level
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"))
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds the connection and identity flags to a command group
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8686", WrapString("The address of the server (host:port for tcp, a socket path for unix)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 30, WrapString("The timeout in seconds of a single read or write"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times a request is attempted before giving up"))

	key = "pool-size"
	cmd.PersistentFlags().Int(key, 8, WrapString("Number of parallel connections for batch queries"))

	key = "username"
	cmd.PersistentFlags().String(key, "", WrapString("User to authenticate as"))

	key = "token"
	cmd.PersistentFlags().String(key, "", WrapString("Token of the user (prefer the HASHSERV_TOKEN environment variable)"))

	key = "become"
	cmd.PersistentFlags().String(key, "", WrapString("User to impersonate after authenticating (requires @user-admin)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Transport:     viper.GetString("transport"),
		Endpoint:      viper.GetString("endpoint"),
		Serializer:    viper.GetString("serializer"),
		Username:      viper.GetString("username"),
		Token:         viper.GetString("token"),
		Become:        viper.GetString("become"),
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
		PoolSize:      viper.GetInt("pool-size"),
	}
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// GetSerializer creates the serializer named by the serializer flag
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString("serializer"))
}

// GetServerTransport creates the server transport named by the transport flag
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// SplitList splits a comma separated flag value, dropping empty entries
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseConditions parses column=value arguments into a where map
func ParseConditions(args []string) (map[string]string, error) {
	where := make(map[string]string, len(args))
	for _, arg := range args {
		column, value, ok := strings.Cut(arg, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("invalid condition %q (expected column=value)", arg)
		}
		where[column] = value
	}
	return where, nil
}

// PrintJSON writes v as indented json to stdout
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
