package application

import (
	"slices"
	"strings"
	"unicode"
)

// NormalizeEventType lowercases t and falls back to in-person for unknown values.
func NormalizeEventType(t string) EventType {
	switch EventType(strings.ToLower(strings.TrimSpace(t))) {
	case EventTypeVirtual:
		return EventTypeVirtual
	case EventTypeHybrid:
		return EventTypeHybrid
	default:
		return EventTypeInPerson
	}
}

// NormalizeCategories lowercases names, maps anything outside Categories to
// "event" and drops duplicates while keeping the first occurrence.
func NormalizeCategories(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if !slices.Contains(Categories, name) {
			name = "event"
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// NormalizeTags normalizes each tag with NormalizeTag, dropping empties and
// duplicates while keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		normalized := NormalizeTag(tag)
		if normalized == "" || slices.Contains(out, normalized) {
			continue
		}
		out = append(out, normalized)
	}
	return out
}

// NormalizeTag strips leading '#', removes punctuation, singularizes a
// trailing "s" on words longer than three letters (but not "ss"), and title
// cases the result: "#Robotics!" becomes "Robotic", "JV" becomes "Jv".
func NormalizeTag(tag string) string {
	tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
	tag = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, tag)
	tag = strings.TrimSpace(tag)

	if len(tag) > 3 && strings.HasSuffix(tag, "s") && !strings.HasSuffix(tag, "ss") {
		tag = tag[:len(tag)-1]
	}
	return titleCase(tag)
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		prevLetter = false
		b.WriteRune(r)
	}
	return b.String()
}
