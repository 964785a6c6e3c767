package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment key, reporting whether it was set.
type LookupFunc func(key string) (string, bool)

// envReader reads typed values and remembers every value it could not parse, so
// a bad configuration is reported in one go rather than one key per restart.
type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (r *envReader) string(key, def string) string {
	if value, ok := r.lookup(key); ok {
		return value
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	value, ok := r.lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: expected integer, got %q", key, value))
		return def
	}
	return v
}

func (r *envReader) bool(key string, def bool) bool {
	value, ok := r.lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: expected boolean, got %q", key, value))
		return def
	}
	return v
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: expected duration, got %q", key, value))
		return def
	}
	return d
}

// list splits a comma separated value, dropping blanks.
func (r *envReader) list(key string, def []string) []string {
	value, ok := r.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// enum lowercases and trims the value, falling back to def when blank.
func (r *envReader) enum(key, def string) string {
	v := strings.ToLower(strings.TrimSpace(r.string(key, def)))
	if v == "" {
		return def
	}
	return v
}
