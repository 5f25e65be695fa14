package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// Key segment separators.
const (
	segmentSep = ":"
	paramSep   = "="
)

// Param is one ordered qualifier of a Key.
// A Param with an empty Name renders as a bare segment ("farm:123").
type Param struct {
	Name  string
	Value string
}

// P returns a named parameter ("farmId=9").
func P(name, value string) Param {
	return Param{Name: name, Value: value}
}

// Seg returns a bare segment ("list", "123").
func Seg(value string) Param {
	return Param{Value: value}
}

// Key is the structured form of a cache key: a category plus an ordered
// parameter list. Its canonical serialization is what the Manager stores and
// what invalidation patterns are matched against.
type Key struct {
	Category string
	Params   []Param
}

// NewKey builds a Key. The category is trimmed and lower-cased.
func NewKey(category string, params ...Param) Key {
	return Key{
		Category: strings.ToLower(strings.TrimSpace(category)),
		Params:   params,
	}
}

// With returns a copy of k with one more named parameter.
func (k Key) With(name, value string) Key {
	params := make([]Param, len(k.Params), len(k.Params)+1)
	copy(params, k.Params)
	return Key{Category: k.Category, Params: append(params, P(name, value))}
}

// String returns the canonical form, e.g. "cattle:farm=9" or "report:farmId=null".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(escapeSegment(k.Category))
	for _, p := range k.Params {
		b.WriteString(segmentSep)
		if p.Name != "" {
			b.WriteString(escapeSegment(p.Name))
			b.WriteString(paramSep)
		}
		b.WriteString(escapeSegment(p.Value))
	}
	return b.String()
}

// Validate checks that the key has a category and no empty segments.
func (k Key) Validate() error {
	if k.Category == "" {
		return fmt.Errorf("%w: empty category", ErrInvalidKey)
	}
	for i, p := range k.Params {
		if p.Value == "" && p.Name == "" {
			return fmt.Errorf("%w: empty segment at position %d", ErrInvalidKey, i+1)
		}
	}
	return nil
}

// ParseKey parses a canonical key string back into a Key.
func ParseKey(s string) (Key, error) {
	if err := ValidateKey(s); err != nil {
		return Key{}, err
	}

	segments := strings.Split(s, segmentSep)
	k := Key{Category: unescapeSegment(segments[0])}
	for _, seg := range segments[1:] {
		name, value, named := strings.Cut(seg, paramSep)
		if named {
			k.Params = append(k.Params, P(unescapeSegment(name), unescapeSegment(value)))
			continue
		}
		k.Params = append(k.Params, Seg(unescapeSegment(seg)))
	}
	return k, nil
}

// ValidateKey rejects empty keys, keys with surrounding or control whitespace,
// and keys with empty segments ("farm::1").
func ValidateKey(s string) error {
	if s == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if strings.TrimSpace(s) != s {
		return fmt.Errorf("%w: key %q has surrounding whitespace", ErrInvalidKey, s)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key %q contains control characters", ErrInvalidKey, s)
		}
	}
	for i, seg := range strings.Split(s, segmentSep) {
		if seg == "" {
			return fmt.Errorf("%w: key %q has an empty segment at position %d", ErrInvalidKey, s, i)
		}
	}
	return nil
}

// Category returns the first segment of a canonical key.
func Category(key string) string {
	category, _, _ := strings.Cut(key, segmentSep)
	return unescapeSegment(category)
}

// MatchPattern reports whether key falls under pattern. Both are split on
// ":" and the key matches when its segments begin with all of the pattern's
// segments. "farm" matches "farm:1" and "farm:list" but not "farmers:1".
// A trailing ":" on the pattern is ignored.
func MatchPattern(key, pattern string) bool {
	pattern = strings.TrimSuffix(pattern, segmentSep)
	if pattern == "" {
		return false
	}
	if !strings.HasPrefix(key, pattern) {
		return false
	}
	rest := key[len(pattern):]
	return rest == "" || strings.HasPrefix(rest, segmentSep)
}

// segmentEscaper escapes the characters that carry structure in a key.
//
//nolint:gochecknoglobals // Read-only replacer table.
var segmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A", "=", "%3D")

//nolint:gochecknoglobals // Read-only replacer table.
var segmentUnescaper = strings.NewReplacer("%3A", ":", "%3D", "=", "%25", "%")

func escapeSegment(s string) string {
	return segmentEscaper.Replace(s)
}

func unescapeSegment(s string) string {
	return segmentUnescaper.Replace(s)
}
