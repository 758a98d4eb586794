package secrets

import (
	"fmt"
	"sort"
	"strings"
)

// MinAdminTokenLength is the shortest admin token accepted in production.
const MinAdminTokenLength = 24

// ValidationError lists every problem found, so operators fix them in one pass.
type ValidationError struct {
	Empty   []string
	TooWeak []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Empty) > 0 {
		parts = append(parts, fmt.Sprintf("empty values for required environment variables: %s", strings.Join(e.Empty, ", ")))
	}
	if len(e.TooWeak) > 0 {
		parts = append(parts, fmt.Sprintf("secrets shorter than %d characters: %s", MinAdminTokenLength, strings.Join(e.TooWeak, ", ")))
	}
	return strings.Join(parts, "; ")
}

// Requirements names the secrets a deployment needs.
type Requirements struct {
	// Required maps env var names to their values; each must be non-empty.
	Required map[string]string
	// Tokens maps env var names to bearer tokens; non-empty ones must be long enough.
	Tokens map[string]string
}

// Validate checks r and returns a *ValidationError describing every failure.
func Validate(r Requirements) error {
	verr := &ValidationError{}
	for name, v := range r.Required {
		if strings.TrimSpace(v) == "" {
			verr.Empty = append(verr.Empty, name)
		}
	}
	for name, v := range r.Tokens {
		if v != "" && len(v) < MinAdminTokenLength {
			verr.TooWeak = append(verr.TooWeak, name)
		}
	}
	if len(verr.Empty) == 0 && len(verr.TooWeak) == 0 {
		return nil
	}
	sort.Strings(verr.Empty)
	sort.Strings(verr.TooWeak)
	return verr
}
