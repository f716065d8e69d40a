package cli

import (
	"fmt"
	"strings"
)

// ParseEnvAssignment splits a KEY=VALUE argument into its key and value.
// The key must be non-empty and the separator present; the value may be
// empty. Only the first '=' separates, so values may themselves contain
// '='.
func ParseEnvAssignment(s string) (key, value string, err error) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", fmt.Errorf("expected ENV=VALUE, no '=' found in %q", s)
	}
	if i == 0 {
		return "", "", fmt.Errorf("expected ENV=VALUE, empty name in %q", s)
	}
	return s[:i], s[i+1:], nil
}
