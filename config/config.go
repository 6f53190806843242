package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

type Config struct {
	Client ClientConfig
	Relay  RelayConfig
}

type ClientConfig struct {
	// ServerURL is the backend root, REST calls go to `<ServerURL>/api`.
	ServerURL string `validate:"required,url"`
	// SocketURL defaults to ServerURL with a ws scheme and path `/ws`.
	SocketURL       string  `validate:"required,url"`
	CredPath        string  `validate:"required"`
	ScrollThreshold float64 `validate:"gt=0"`
	AnchorLastSeen  bool
	RemoteTimeout   time.Duration `validate:"gt=0"`
	MetricsAddr     string        `validate:"omitempty,hostname_port"`
}

type RelayConfig struct {
	Addr   string `validate:"required,hostname_port"`
	DBPath string `validate:"required"`
	// JWTSecret enables JWT authentication; when empty the relay trusts the
	// bearer token as the uid.
	JWTSecret string
	TokenTTL  time.Duration `validate:"gt=0"`
}

// Load reads the environment, after loading `.env` files if any.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		glog.V(5).Infof("config: no .env loaded: %v", err)
	}

	var errs []string
	conf := &Config{
		Client: ClientConfig{
			ServerURL:       getEnvOrDefault("MINICHAT_SERVER_URL", "http://127.0.0.1:8000"),
			SocketURL:       os.Getenv("MINICHAT_SOCKET_URL"),
			CredPath:        getEnvOrDefault("MINICHAT_CRED_PATH", "minichat-cred.db"),
			ScrollThreshold: getFloatOrDefault("MINICHAT_SCROLL_THRESHOLD", 120, &errs),
			AnchorLastSeen:  getBoolOrDefault("MINICHAT_ANCHOR_LAST_SEEN", false, &errs),
			RemoteTimeout:   getDurationOrDefault("MINICHAT_REMOTE_TIMEOUT", "10s", &errs),
			MetricsAddr:     os.Getenv("MINICHAT_METRICS_ADDR"),
		},
		Relay: RelayConfig{
			Addr:      getEnvOrDefault("MINICHAT_RELAY_ADDR", "127.0.0.1:8000"),
			DBPath:    getEnvOrDefault("MINICHAT_RELAY_DB", "minichat-relay.db"),
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getDurationOrDefault("JWT_EXPIRES_IN", "24h", &errs),
		},
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}

	if conf.Client.SocketURL == "" {
		u, err := SocketURL(conf.Client.ServerURL)
		if err != nil {
			return nil, err
		}
		conf.Client.SocketURL = u
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks field constraints, e.g. after flags override loaded values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SocketURL derives the websocket endpoint from a server URL.
func SocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("config: server url `%s`: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("config: server url `%s`: unsupported scheme", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string, errs *[]string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid duration for %s: %v", key, err))
	}
	return duration
}

func getFloatOrDefault(key string, defaultValue float64, errs *[]string) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid number for %s: %v", key, err))
	}
	return f
}

func getBoolOrDefault(key string, defaultValue bool, errs *[]string) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid bool for %s: %v", key, err))
	}
	return b
}
