package cli

import "testing"

func TestParseEnvAssignment(t *testing.T) {
	cases := []struct {
		in      string
		key     string
		value   string
		wantErr bool
	}{
		{"FOO=bar", "FOO", "bar", false},
		{"FOO=", "FOO", "", false},
		{"FOO=a=b", "FOO", "a=b", false},
		{"MEMORY_TOOLS_VERBOSITY=trace", "MEMORY_TOOLS_VERBOSITY", "trace", false},
		{"FOO", "", "", true},
		{"=bar", "", "", true},
		{"", "", "", true},
	}
	for _, tc := range cases {
		key, value, err := ParseEnvAssignment(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseEnvAssignment(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if key != tc.key || value != tc.value {
			t.Errorf("ParseEnvAssignment(%q) = %q, %q; want %q, %q", tc.in, key, value, tc.key, tc.value)
		}
	}
}
