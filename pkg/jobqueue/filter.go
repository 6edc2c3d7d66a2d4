package jobqueue

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Paginate configures default page sizes. Pagination is enabled when
// Default is positive; Max caps any requested limit when positive.
type Paginate struct {
	Default int `json:"default" yaml:"default" env:"DEFAULT" envDefault:"0"`
	Max     int `json:"max" yaml:"max" env:"MAX" envDefault:"0"`
}

// Enabled reports whether results should be wrapped in a page envelope.
func (p Paginate) Enabled() bool {
	return p.Default > 0
}

// Filter holds the normalized pagination parameters of a query.
// A nil field was not supplied by the caller.
type Filter struct {
	Limit *int
	Skip  *int
}

// ParseFilter extracts $limit and $skip from a caller query.
// Negative values are taken by absolute value. With pagination enabled a
// missing $limit falls back to Default and every limit is capped at Max.
// Other keys, including unsupported $ operators, are ignored.
func ParseFilter(query map[string]string, paginate Paginate) (Filter, error) {
	var f Filter

	limit, err := parseFilterInt(query, "$limit")
	if err != nil {
		return Filter{}, err
	}
	skip, err := parseFilterInt(query, "$skip")
	if err != nil {
		return Filter{}, err
	}

	f.Limit = effectiveLimit(limit, paginate)
	f.Skip = skip
	return f, nil
}

func effectiveLimit(limit *int, paginate Paginate) *int {
	if !paginate.Enabled() {
		return limit
	}
	n := paginate.Default
	if limit != nil {
		n = *limit
	}
	if paginate.Max > 0 {
		n = min(n, paginate.Max)
	}
	return &n
}

func parseFilterInt(query map[string]string, key string) (*int, error) {
	raw, ok := query[key]
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidFilter, key, raw)
	}
	if n == math.MinInt {
		return nil, fmt.Errorf("%w: %s is out of range, got %q", ErrInvalidFilter, key, raw)
	}
	if n < 0 {
		n = -n
	}
	return &n, nil
}
