// Package route implements the single-key order-routing configuration
// (§3 Routing config) and its serialization into submitted-order
// fields (§4.7).
package route
