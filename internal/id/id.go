// Package id generates short prefixed identifiers for processing cycles,
// review requests and event stream clients.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	PrefixCycle  = "cycle"
	PrefixReview = "review"
	PrefixClient = "client"
)

// alphabet leaves out '-' and '_' so the prefix separator is unambiguous and
// ids survive a double click in a terminal.
const (
	alphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	size     = 16
)

// Generate returns prefix, a dash and a random suffix, e.g. "cycle-4fTq9XbR2mKd7Lw3".
func Generate(prefix string) (string, error) {
	suffix, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return prefix + "-" + suffix, nil
}

// Split separates an id into its prefix and random suffix.
func Split(id string) (prefix, suffix string, ok bool) {
	prefix, suffix, ok = strings.Cut(id, "-")
	if !ok || prefix == "" || len(suffix) != size || strings.Trim(suffix, alphabet) != "" {
		return "", "", false
	}
	return prefix, suffix, true
}

// HasPrefix reports whether id is a well formed id generated with prefix.
func HasPrefix(id, prefix string) bool {
	p, _, ok := Split(id)
	return ok && p == prefix
}
