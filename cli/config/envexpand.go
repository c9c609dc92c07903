// Package config loads stagekit.yaml, the optional defaults file for
// stagekit commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ${NAME}, ${NAME:-default} or ${NAME:?message}. A bare $NAME is left alone
// so shell snippets in the file survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])([^}]*))?\}`)

// ExpandEnv substitutes environment references in input.
//
// ${NAME} becomes the value of NAME, or "" when unset. ${NAME:-default}
// falls back to default when NAME is unset or empty. ${NAME:?message}
// fails with message instead; every missing required variable is
// reported, not just the first.
func ExpandEnv(input string) (string, error) {
	var (
		b    strings.Builder
		errs []error
		last int
	)
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		value := os.Getenv(name)
		if value != "" || m[4] < 0 {
			b.WriteString(value)
			continue
		}
		arg := input[m[6]:m[7]]
		if input[m[4]:m[5]] == ":?" {
			if arg == "" {
				arg = "required but not set"
			}
			errs = append(errs, fmt.Errorf("%s: %s", name, arg))
			continue
		}
		b.WriteString(arg)
	}
	b.WriteString(input[last:])
	return b.String(), errors.Join(errs...)
}
