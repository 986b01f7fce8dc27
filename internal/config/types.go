package config

import "time"

// Config is the full process configuration.
type Config struct {
	Log      LogConfig                `toml:"log"`
	HTTP     HTTPConfig               `toml:"http"`
	Contexts map[string]ContextConfig `toml:"contexts"`
}

type LogConfig struct {
	Level string `toml:"level"`

	// Path appends logs to a file in addition to stdout when set.
	Path string `toml:"path"`
}

// HTTPConfig controls the optional status server.
type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ContextConfig describes one orchestration context: the exchanges it fans
// out to, its scheduled calls, and its streaming subscriptions.
type ContextConfig struct {
	// Exchanges lists backend names in fan-out order. Supported backends:
	// "binance", "dummy".
	Exchanges []string `toml:"exchanges"`

	// Currencies restricts the tradeable universe. Empty means everything
	// the venue lists.
	Currencies []string `toml:"currencies"`

	// Credentials are keyed by exchange name.
	Credentials map[string]CredentialConfig `toml:"credentials"`

	// Calls maps callnames to their scheduling parameters. Each configured
	// call is dispatched once per scheduler pass.
	Calls map[string]CallConfig `toml:"calls"`

	// Subscriptions maps streamed channel names to result types.
	Subscriptions map[string]string `toml:"subscriptions"`

	WS WSConfig `toml:"ws"`

	// Backends carries per-exchange tuning.
	Backends map[string]BackendConfig `toml:"backends"`
}

type CredentialConfig struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
}

// CallConfig schedules one named call.
type CallConfig struct {
	// Arguments are passed through after the implied symbol, when any.
	Arguments []any `toml:"arguments"`

	// Delay defers execution through the work queue.
	Delay time.Duration `toml:"delay"`

	// Priority orders same-due-time work; lower runs first.
	Priority int `toml:"priority"`
}

// WSConfig describes the context's streaming endpoint.
type WSConfig struct {
	URL string `toml:"url"`

	// ChannelField is the JSON path used to route inbound messages.
	ChannelField string `toml:"channel_field"`

	// Subscribe payloads are sent verbatim after every (re)connect.
	Subscribe []string `toml:"subscribe"`

	PingInterval time.Duration `toml:"ping_interval"`
}

// BackendConfig tunes one exchange backend.
type BackendConfig struct {
	RESTBaseURL string        `toml:"rest_base_url"`
	HTTPTimeout time.Duration `toml:"http_timeout"`
	RateLimit   time.Duration `toml:"rate_limit"`
	DepthLimit  int           `toml:"depth_limit"`
	TradesLimit int           `toml:"trades_limit"`
}
