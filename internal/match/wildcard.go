package match

import "strings"

// Pattern is a compiled '*' wildcard matcher.
// Params: internal split parts and anchor flags.
// Returns: reusable matcher for many Match calls.
type Pattern struct {
	parts         []string
	anchoredStart bool
	anchoredEnd   bool
	matchAll      bool
}

// Compile compiles pattern into a reusable wildcard matcher.
// Params: pattern may contain '*' wildcards.
// Returns: compiled matcher and false when pattern is blank.
func Compile(pattern string) (Pattern, bool) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return Pattern{}, false
	}
	if p == "*" {
		return Pattern{matchAll: true}, true
	}

	return Pattern{
		parts:         strings.Split(p, "*"),
		anchoredStart: !strings.HasPrefix(p, "*"),
		anchoredEnd:   !strings.HasSuffix(p, "*"),
	}, true
}

// CompileAll compiles a pattern list, skipping blank entries.
// Params: patterns wildcard strings from config.
// Returns: compiled pattern slice (nil when nothing compiles).
func CompileAll(patterns []string) []Pattern {
	if len(patterns) == 0 {
		return nil
	}

	compiled := make([]Pattern, 0, len(patterns))
	for _, pattern := range patterns {
		parsed, ok := Compile(pattern)
		if !ok {
			continue
		}
		compiled = append(compiled, parsed)
	}
	return compiled
}

// Match evaluates the compiled wildcard pattern against value.
// Params: value is compared text.
// Returns: true on pattern match.
func (p Pattern) Match(value string) bool {
	if p.matchAll {
		return true
	}
	if len(p.parts) == 0 {
		return false
	}

	cursor := 0
	partIndex := 0

	if p.anchoredStart {
		startPart := p.parts[0]
		if !strings.HasPrefix(value, startPart) {
			return false
		}
		cursor = len(startPart)
		partIndex = 1
	}

	lastIndex := len(p.parts) - 1
	loopLimit := len(p.parts)
	if p.anchoredEnd {
		loopLimit = lastIndex
	}

	for ; partIndex < loopLimit; partIndex++ {
		segment := p.parts[partIndex]
		if segment == "" {
			continue
		}
		offset := strings.Index(value[cursor:], segment)
		if offset < 0 {
			return false
		}
		cursor += offset + len(segment)
	}

	if p.anchoredEnd {
		endPart := p.parts[lastIndex]
		if endPart == "" {
			return true
		}
		return strings.HasSuffix(value, endPart)
	}

	return true
}

// Any evaluates value against every compiled pattern.
// Params: patterns compiled matcher list; value compared text.
// Returns: true when at least one pattern matches.
func Any(patterns []Pattern, value string) bool {
	for _, pattern := range patterns {
		if pattern.Match(value) {
			return true
		}
	}
	return false
}
