// Package topic implements MQTT topic filter compilation and matching:
// the "+" single-level wildcard, the trailing "#" multi-level wildcard, and
// the "$share/<group>/" shared-subscription prefix.
package topic

import (
	"fmt"
	"regexp"
	"strings"
)

// sharePrefix matches "$share/<group>/" at the start of a filter.
var sharePrefix = regexp.MustCompile(`^\$share/[^/+#]+/`)

// Filter is a compiled topic filter. It is safe for concurrent use; callers
// typically compile one per Subscription and keep it for the subscription's
// lifetime.
type Filter struct {
	raw     string
	re      *regexp.Regexp
	group   string // shared-subscription group, empty if not a $share filter
	levels  []string
}

// Compile parses and compiles filter. It rejects filters that are empty,
// contain a wildcard sharing a level with other characters, or place "#"
// anywhere but the last level, mirroring the MQTT 3.1.1 rules for
// Topic Filters (section 4.7).
func Compile(filter string) (*Filter, error) {
	if filter == "" {
		return nil, fmt.Errorf("topic: empty filter")
	}

	group := ""
	body := filter
	if m := sharePrefix.FindString(filter); m != "" {
		group = strings.TrimSuffix(strings.TrimPrefix(m, "$share/"), "/")
		body = filter[len(m):]
		if body == "" {
			return nil, fmt.Errorf("topic: %q: empty filter after $share prefix", filter)
		}
	}

	levels := strings.Split(body, "/")
	var pattern strings.Builder
	pattern.WriteByte('^')
	for i, level := range levels {
		if i > 0 {
			pattern.WriteString("/")
		}
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return nil, fmt.Errorf("topic: %q: '#' must be the last level", filter)
			}
			if i == 0 {
				pattern.WriteString(`(?P<w0>.*)`)
			} else {
				// "#" also matches the parent level itself, so the
				// separator before it is optional.
				s := pattern.String()
				pattern.Reset()
				pattern.WriteString(strings.TrimSuffix(s, "/"))
				pattern.WriteString(fmt.Sprintf(`(?:/(?P<w%d>.*)|(?P<w%dempty>))`, i, i))
			}
		case level == "+":
			pattern.WriteString(fmt.Sprintf(`(?P<w%d>[^/]*)`, i))
		case strings.Contains(level, "+") || strings.Contains(level, "#"):
			return nil, fmt.Errorf("topic: %q: '+' and '#' must occupy an entire level", filter)
		default:
			pattern.WriteString(regexp.QuoteMeta(level))
		}
	}
	pattern.WriteByte('$')

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("topic: %q: %w", filter, err)
	}
	return &Filter{raw: filter, re: re, group: group, levels: levels}, nil
}

// String returns the original filter text, including any $share prefix.
func (f *Filter) String() string { return f.raw }

// ShareGroup returns the shared-subscription group name, or "" if filter is
// not a $share/<group>/ filter.
func (f *Filter) ShareGroup() string { return f.group }

// startsWithDollar reports whether s begins with '$'. Matches uses it to keep
// a leading wildcard from matching a '$' topic name, per MQTT 3.1.1 section
// 4.7.2.
func startsWithDollar(s string) bool { return strings.HasPrefix(s, "$") }

// Matches reports whether topic (a concrete topic name, never containing
// wildcards) satisfies this filter.
func (f *Filter) Matches(topic string) bool {
	if startsWithDollar(topic) && !startsWithDollar(f.levels[0]) {
		// A leading wildcard (+ or #) must not match a topic name that
		// begins with "$", even though the regex itself would allow it.
		first := f.levels[0]
		if first == "+" || first == "#" {
			return false
		}
	}
	return f.re.MatchString(topic)
}

// MatchedWildcards returns, in level order, the concrete text each "+" or
// trailing "#" in the filter captured when matching topic. It returns nil if
// topic does not match.
func (f *Filter) MatchedWildcards(topic string) []string {
	match := f.re.FindStringSubmatch(topic)
	if match == nil {
		return nil
	}
	names := f.re.SubexpNames()
	var out []string
	for i, name := range names {
		if name == "" || strings.HasSuffix(name, "empty") {
			continue
		}
		out = append(out, match[i])
	}
	return out
}
