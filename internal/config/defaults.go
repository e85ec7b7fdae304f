package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultUpstreamPort    = 11000
	DefaultHTTPPort        = 8080
	DefaultTCPPort         = 11100
	DefaultTimezone        = "America/New_York"
	DefaultTimeoutDefault  = 5 * time.Second
	DefaultTimeoutAccount  = 10 * time.Second
	DefaultTimeoutOrder    = 5 * time.Second
	DefaultWatchdogSeconds = 30 * time.Second
	DefaultReconnectBase   = 15 * time.Second
	DefaultReconnectMax    = 60 * time.Second
	DefaultMaxLineBytes    = 16 * 1024 * 1024 // 16 MiB, §4.1
)

func (c *GatewayConfig) applyDefaults() {
	if c.Upstream.Port == 0 {
		c.Upstream.Port = DefaultUpstreamPort
	}
	if c.Downstream.HTTPPort == 0 {
		c.Downstream.HTTPPort = DefaultHTTPPort
	}
	if c.Downstream.TCPPort == 0 {
		c.Downstream.TCPPort = DefaultTCPPort
	}
	if c.Feed.Timezone == "" {
		c.Feed.Timezone = DefaultTimezone
	}

	if c.Timeouts.Default == 0 {
		c.Timeouts.Default = DefaultTimeoutDefault
	}
	if c.Timeouts.Account == 0 {
		c.Timeouts.Account = DefaultTimeoutAccount
	}
	if c.Timeouts.AddSymbol == 0 {
		c.Timeouts.AddSymbol = c.Timeouts.Default
	}
	if c.Timeouts.Order == 0 {
		c.Timeouts.Order = DefaultTimeoutOrder
	}
	if c.Timeouts.OrderStatus == 0 {
		c.Timeouts.OrderStatus = c.Timeouts.Default
	}
	if c.Timeouts.Position == 0 {
		c.Timeouts.Position = c.Timeouts.Default
	}
	if c.Timeouts.Timer == 0 {
		c.Timeouts.Timer = c.Timeouts.Default
	}
}
