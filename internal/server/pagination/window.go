package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Window is a limit/offset slice of an ordered result.
type Window struct {
	Limit  int
	Offset int
}

// ParseWindow reads the limit and offset query parameters. Missing values
// and a zero limit take the defaults. A limit above MaxLimit is clamped. A
// value that is not a non-negative integer is an error.
func ParseWindow(q url.Values) (Window, error) {
	w := Window{Limit: DefaultLimit}

	limit, ok, err := parseNonNegative(q, "limit")
	if err != nil {
		return Window{}, err
	}
	if ok && limit > 0 {
		w.Limit = min(limit, MaxLimit)
	}

	offset, ok, err := parseNonNegative(q, "offset")
	if err != nil {
		return Window{}, err
	}
	if ok {
		w.Offset = offset
	}
	return w, nil
}

// Normalize applies the same defaults and bounds ParseWindow would.
func (w Window) Normalize() Window {
	if w.Limit <= 0 {
		w.Limit = DefaultLimit
	}
	w.Limit = min(w.Limit, MaxLimit)
	w.Offset = max(w.Offset, 0)
	return w
}

func parseNonNegative(q url.Values, name string) (int, bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid '%s' parameter: must be an integer", name)
	}
	if n < 0 {
		return 0, false, fmt.Errorf("invalid '%s' parameter: must not be negative", name)
	}
	return n, true, nil
}
