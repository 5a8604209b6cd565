package cache

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Category classifies a cached result; it selects the TTL applied when the
// result is stored and is otherwise opaque to the cache.
type Category string

const (
	CategoryDashboard Category = "dashboard"
	CategoryGraph     Category = "graph"
	CategoryAnalytics Category = "analytics"
	CategoryReport    Category = "report"
)

// Policy maps categories to TTLs. Unknown categories fall back to the
// policy's default TTL, so TTL selection never fails.
type Policy struct {
	ttls       map[Category]time.Duration
	defaultTTL time.Duration
}

// DefaultPolicy returns the built-in category table: dashboard 5m,
// graph 10m, analytics 1h, report 24h, default 5m.
func DefaultPolicy() *Policy {
	return &Policy{
		ttls: map[Category]time.Duration{
			CategoryDashboard: 5 * time.Minute,
			CategoryGraph:     10 * time.Minute,
			CategoryAnalytics: time.Hour,
			CategoryReport:    24 * time.Hour,
		},
		defaultTTL: DefaultTTL,
	}
}

// TTL returns the TTL for a category, or the default TTL when the category
// is not in the table.
func (p *Policy) TTL(category Category) time.Duration {
	if ttl, ok := p.ttls[category]; ok {
		return ttl
	}
	return p.defaultTTL
}

// policyFile is the YAML shape accepted by LoadPolicy:
//
//	default: 5m
//	categories:
//	  dashboard: 5m
//	  report: 1d
type policyFile struct {
	Default    string            `yaml:"default"`
	Categories map[string]string `yaml:"categories"`
}

// LoadPolicy reads a category policy from a YAML file. Durations accept
// day suffixes ("1d", "2d12h") in addition to the standard units.
// Categories not present in the file keep their built-in TTLs.
func LoadPolicy(path string) (*Policy, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cache: read policy file")
	}
	var pf policyFile
	if err := yaml.Unmarshal(buf, &pf); err != nil {
		return nil, errors.Wrap(err, "cache: parse policy file")
	}
	policy := DefaultPolicy()
	if pf.Default != "" {
		d, err := str2duration.ParseDuration(pf.Default)
		if err != nil {
			return nil, errors.Wrapf(err, "cache: invalid default ttl %q", pf.Default)
		}
		policy.defaultTTL = d
	}
	for name, val := range pf.Categories {
		d, err := str2duration.ParseDuration(val)
		if err != nil {
			return nil, errors.Wrapf(err, "cache: invalid ttl %q for category %q", val, name)
		}
		policy.ttls[Category(name)] = d
	}
	return policy, nil
}
