package search

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"mts/internal/validation"
)

// KeyPrefix namespaces search results in the shared cache key space.
const KeyPrefix = "search:"

// Query is one search request against the portal backend.
type Query struct {
	Text    string
	Filters map[string]string

	// MaxAge overrides the client's freshness window when positive.
	MaxAge time.Duration
	// NoCache skips the cache read; the fresh result is still stored.
	NoCache bool
}

// Normalize trims, lowercases and collapses whitespace in the text and
// validates filters. Equivalent queries normalize to the same value.
func (q Query) Normalize() (Query, error) {
	if err := validation.ValidateQuery(q.Text); err != nil {
		return q, err
	}

	out := q
	out.Text = strings.Join(strings.Fields(strings.ToLower(q.Text)), " ")

	if len(q.Filters) > 0 {
		out.Filters = make(map[string]string, len(q.Filters))
		for name, value := range q.Filters {
			name = strings.TrimSpace(name)
			if err := validation.ValidateFilterName(name); err != nil {
				return q, err
			}
			if name == "q" {
				return q, fmt.Errorf("filter name q is reserved for the query text")
			}
			if _, dup := out.Filters[name]; dup {
				return q, fmt.Errorf("filter %s is given more than once", name)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return q, fmt.Errorf("filter %s has an empty value", name)
			}
			out.Filters[name] = value
		}
	}
	return out, nil
}

// Key encodes the query into its cache key, e.g. "search:foo|lang=sv".
// Call on a normalized query.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteString(strings.ReplaceAll(q.Text, "|", "%7C"))
	for _, name := range q.filterNames() {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.Filters[name]))
	}
	return b.String()
}

// Values returns the backend query string parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("q", q.Text)
	for _, name := range q.filterNames() {
		v.Set(name, q.Filters[name])
	}
	return v
}

func (q Query) filterNames() []string {
	names := make([]string, 0, len(q.Filters))
	for name := range q.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
