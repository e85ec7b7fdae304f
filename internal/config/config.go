// Package config loads and validates gateway configuration.
package config

import "time"

// GatewayConfig is the root configuration for a gateway instance.
type GatewayConfig struct {
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Downstream DownstreamConfig `yaml:"downstream"`
	Logging    LoggingConfig    `yaml:"logging"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Feed       FeedConfig       `yaml:"feed"`
}

// UpstreamConfig holds the upstream market/order gateway connection.
type UpstreamConfig struct {
	Host     string `yaml:"host"`     // API_HOST
	Port     int    `yaml:"port"`     // API_PORT
	Username string `yaml:"username"` // USERNAME
	Password string `yaml:"password"` // PASSWORD
}

// DownstreamConfig holds the listener ports exposed to trading clients.
// Both protocols are external collaborators (§1 Out of scope); the
// gateway only needs their bind addresses.
type DownstreamConfig struct {
	HTTPPort int `yaml:"http_port"` // HTTP_PORT
	TCPPort  int `yaml:"tcp_port"`  // TCP_PORT
}

// LoggingConfig controls verbosity of wire-level logging.
type LoggingConfig struct {
	LogAPIMessages    bool `yaml:"log_api_messages"`    // LOG_API_MESSAGES
	DebugAPIMessages  bool `yaml:"debug_api_messages"`  // DEBUG_API_MESSAGES
	LogClientMessages bool `yaml:"log_client_messages"` // LOG_CLIENT_MESSAGES
	LogOrderUpdates   bool `yaml:"log_order_updates"`   // LOG_ORDER_UPDATES
}

// FeedConfig controls optional tick enrichment and routing defaults.
type FeedConfig struct {
	EnableTicker      bool   `yaml:"enable_ticker"`       // ENABLE_TICKER
	EnableHighLow     bool   `yaml:"enable_high_low"`     // ENABLE_HIGH_LOW
	EnableSecondsTick bool   `yaml:"enable_seconds_tick"` // ENABLE_SECONDS_TICK
	Timezone          string `yaml:"timezone"`            // API_TIMEZONE
	Route             string `yaml:"route"`               // API_ROUTE
}

// TimeoutConfig holds the per-label callback deadlines named in §4.4.
// Labels are DEFAULT, ACCOUNT, ADDSYMBOL, ORDER, ORDERSTATUS, POSITION, TIMER.
type TimeoutConfig struct {
	Default     time.Duration `yaml:"default"`      // TIMEOUT_DEFAULT
	Account     time.Duration `yaml:"account"`      // TIMEOUT_ACCOUNT
	AddSymbol   time.Duration `yaml:"add_symbol"`   // TIMEOUT_ADDSYMBOL
	Order       time.Duration `yaml:"order"`        // TIMEOUT_ORDER
	OrderStatus time.Duration `yaml:"order_status"` // TIMEOUT_ORDERSTATUS
	Position    time.Duration `yaml:"position"`     // TIMEOUT_POSITION
	Timer       time.Duration `yaml:"timer"`        // TIMEOUT_TIMER
}

// Label identifies a callback timeout/metrics bucket.
type Label string

const (
	LabelDefault     Label = "DEFAULT"
	LabelAccount     Label = "ACCOUNT"
	LabelAddSymbol   Label = "ADDSYMBOL"
	LabelOrder       Label = "ORDER"
	LabelOrderStatus Label = "ORDERSTATUS"
	LabelPosition    Label = "POSITION"
	LabelTimer       Label = "TIMER"
)

// Deadline returns the configured timeout for a label, falling back to
// Default when the label-specific value is unset.
func (t TimeoutConfig) Deadline(label Label) time.Duration {
	var d time.Duration
	switch label {
	case LabelAccount:
		d = t.Account
	case LabelAddSymbol:
		d = t.AddSymbol
	case LabelOrder:
		d = t.Order
	case LabelOrderStatus:
		d = t.OrderStatus
	case LabelPosition:
		d = t.Position
	case LabelTimer:
		d = t.Timer
	}
	if d == 0 {
		return t.Default
	}
	return d
}
