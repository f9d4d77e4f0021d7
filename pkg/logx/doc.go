// Package logx wraps zerolog with a small fielded API so callers don't
// depend on zerolog types directly.
package logx
