package route

import (
	"sort"
	"sync"

	"github.com/rickgao/txrelay/internal/proto"
)

// Delimiters used to serialize STRAT_PARAMETERS / STRAT_REDUNDANT_DATA
// into a single field value (§3 Routing config).
const (
	fieldSep = "\x1F"
	pairSep  = "\x01"
)

// Params holds the two route-specific field groups a route's value may
// carry (§3 "the two keys STRAT_PARAMETERS and STRAT_REDUNDANT_DATA").
type Params struct {
	StratParameters    map[string]string
	StratRedundantData map[string]string
}

// Config is the single-key order_route mapping: one route name bound
// to optional Params (§3 Routing config).
type Config struct {
	mu     sync.Mutex
	name   string
	params *Params
}

// NewConfig creates a routing config with the given default route name
// (§6 API_ROUTE) and no parameters.
func NewConfig(routeName string) *Config {
	return &Config{name: routeName}
}

// Set replaces the active route, matching the "Order route get/set"
// supplemented runtime operation.
func (c *Config) Set(name string, params *Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.params = params
}

// Get returns the active route name and its parameters.
func (c *Config) Get() (string, *Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name, c.params
}

// encode serializes a field group as "k\x1Fv\x01" repeated, in
// insertion order of the map's sorted keys for determinism.
func encode(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out string
	for _, k := range keys {
		out += k + fieldSep + m[k] + pairSep
	}
	return out
}

// Fields renders the route's contribution to a submitted order's
// canonical field list: EXIT_VEHICLE first, then STRAT_PARAMETERS and
// STRAT_REDUNDANT_DATA if the route carries either (§4.7).
func (c *Config) Fields() []proto.KV {
	name, params := c.Get()

	fields := []proto.KV{{Key: "EXIT_VEHICLE", Value: name}}
	if params == nil {
		return fields
	}
	if len(params.StratParameters) > 0 {
		fields = append(fields, proto.KV{Key: "STRAT_PARAMETERS", Value: encode(params.StratParameters)})
	}
	if len(params.StratRedundantData) > 0 {
		fields = append(fields, proto.KV{Key: "STRAT_REDUNDANT_DATA", Value: encode(params.StratRedundantData)})
	}
	return fields
}
