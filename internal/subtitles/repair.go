package subtitles

import "strings"

const mojibakeThreshold = 20

// Latin-1 characters that stand in for Slovenian letters when a
// Windows-1250 file was decoded as Latin-1 and re-encoded as UTF-8.
var mojibakeMarkers = []rune{'è', 'æ', '¹', '¾'}

var slovenianRepair = strings.NewReplacer(
	"è", "č",
	"È", "Č",
	"æ", "ć",
	"Æ", "Ć",
	"¹", "š",
	"©", "Š",
	"¾", "ž",
	"®", "Ž",
	"ð", "đ",
	"Ð", "Đ",
)

// HasMojibake reports whether text shows the Slovenian corruption pattern:
// more than mojibakeThreshold occurrences of any single marker.
func HasMojibake(text string) bool {
	for _, marker := range mojibakeMarkers {
		if strings.Count(text, string(marker)) > mojibakeThreshold {
			return true
		}
	}
	return false
}

// RepairMojibake fixes corrupted Slovenian characters in data. Only "sl"
// payloads showing the corruption pattern are rewritten; the boolean reports
// whether a repair happened.
func RepairMojibake(data []byte, lang string) ([]byte, bool) {
	if !strings.EqualFold(lang, "sl") {
		return data, false
	}
	text := string(data)
	if !HasMojibake(text) {
		return data, false
	}
	return []byte(slovenianRepair.Replace(text)), true
}
