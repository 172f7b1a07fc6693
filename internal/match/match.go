// Package match implements topic wildcard matching shared by the router,
// broadcaster, and history queries.
package match

import (
	"regexp"
	"strings"
	"sync"
)

// Matcher converts `*` wildcards in topic patterns to regular expressions and
// caches the compiled form. Matching is deliberately unanchored: the pattern
// may match anywhere inside the topic string, so `order.*` matches
// `other.order.placed` as well as `order.placed`. Downstream routing tables
// rely on this behavior; do not anchor without a routing-table migration.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewMatcher constructs a matcher with an empty pattern cache.
func NewMatcher() *Matcher {
	matcher := new(Matcher)
	matcher.cache = make(map[string]*regexp.Regexp)
	return matcher
}

// Match reports whether pattern matches topic. A pattern without wildcards
// still matches any topic containing it as a substring, mirroring the
// unanchored regexp test.
func (m *Matcher) Match(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	re, err := m.compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(topic)
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	re, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return re, nil
	}

	segments := strings.Split(pattern, "*")
	for i, segment := range segments {
		segments[i] = regexp.QuoteMeta(segment)
	}
	re, err := regexp.Compile(strings.Join(segments, ".*"))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[pattern] = re
	m.mu.Unlock()
	return re, nil
}
