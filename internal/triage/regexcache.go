package triage

import (
	"regexp"
	"sync"
)

// regexCache compiles and memoizes patterns from the opt-in
// routing.hard_rules[].regex extension so a rule's pattern is compiled
// at most once per process, not once per request.
type regexCache struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

var compiledRegexCache = &regexCache{cache: make(map[string]*regexp.Regexp)}

func (c *regexCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.cache[pattern] = re
	return re, nil
}
