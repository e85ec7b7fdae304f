// Package field decodes upstream typed-string fields: numeric values,
// plain strings, and the "Error <code>" sentinel the upstream gateway
// uses in place of a real value (§4.8).
package field
