package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Upstream.Host == "" {
		return errors.New("upstream.host is required")
	}
	if c.Upstream.Port < 1 || c.Upstream.Port > 65535 {
		return fmt.Errorf("upstream.port must be between 1 and 65535, got %d", c.Upstream.Port)
	}
	if c.Downstream.HTTPPort < 1 || c.Downstream.HTTPPort > 65535 {
		return fmt.Errorf("downstream.http_port must be between 1 and 65535, got %d", c.Downstream.HTTPPort)
	}
	if c.Downstream.TCPPort < 1 || c.Downstream.TCPPort > 65535 {
		return fmt.Errorf("downstream.tcp_port must be between 1 and 65535, got %d", c.Downstream.TCPPort)
	}
	if c.Feed.Timezone == "" {
		return errors.New("feed.timezone is required")
	}
	if c.Feed.Route == "" {
		return errors.New("feed.route is required")
	}
	return nil
}
