package language

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Pair links a configured 2-letter code with its 3-letter form.
type Pair struct {
	Two   string
	Three string
}

// Mapping is an ordered set of configured languages.
type Mapping []Pair

// BuildMapping maps each 2-letter code to its 3-letter form. Codes with no
// known 3-letter form map to themselves.
func BuildMapping(codes []string) Mapping {
	mapping := make(Mapping, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		two := strings.ToLower(strings.TrimSpace(code))
		if two == "" {
			continue
		}
		if _, dup := seen[two]; dup {
			continue
		}
		seen[two] = struct{}{}
		three := ToISO3(two)
		if three == "und" {
			three = two
		}
		mapping = append(mapping, Pair{Two: two, Three: three})
	}
	return mapping
}

// Three returns the 3-letter form configured for two, or two itself.
func (m Mapping) Three(two string) string {
	for _, pair := range m {
		if strings.EqualFold(pair.Two, two) {
			return pair.Three
		}
	}
	return two
}

// Codes returns the configured 2-letter codes in order.
func (m Mapping) Codes() []string {
	codes := make([]string, 0, len(m))
	for _, pair := range m {
		codes = append(codes, pair.Two)
	}
	return codes
}

// Matches reports whether code equals any configured 2- or 3-letter form.
func (m Mapping) Matches(code string) bool {
	for _, pair := range m {
		if IsMatch(code, pair.Two, pair.Three) {
			return true
		}
	}
	return false
}

// IsMatch compares code against a 2- and 3-letter form, ignoring case. An
// empty code never matches.
func IsMatch(code, two, three string) bool {
	if code == "" {
		return false
	}
	return strings.EqualFold(code, two) || strings.EqualFold(code, three)
}

// ExtractCode returns the language token of a subtitle file name relative to
// its video's base name, e.g. "Movie.2.en.srt" with base "Movie" yields "en".
// It returns "" when the name carries no plausible code.
func ExtractCode(fileName, videoBase string) string {
	name := filepath.Base(fileName)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if len(name) >= len(videoBase) && strings.EqualFold(name[:len(videoBase)], videoBase) {
		name = name[len(videoBase):]
	}
	remainder := strings.TrimLeft(name, ".")
	if remainder == "" {
		return ""
	}
	parts := strings.Split(remainder, ".")
	candidate := parts[len(parts)-1]
	if len(candidate) < 2 || len(candidate) > 5 {
		return ""
	}
	for _, r := range candidate {
		if r != '-' && !unicode.IsLetter(r) {
			return ""
		}
	}
	return candidate
}
