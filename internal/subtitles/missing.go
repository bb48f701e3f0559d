package subtitles

import (
	"os"
	"path/filepath"

	"vtranscoder/internal/language"
)

// missingFolders lists where finished SRT files are looked for, relative to
// the output directory.
var missingFolders = []string{"", SubsDirName, "subtitle"}

// MissingLanguages returns the configured 2-letter codes that have no SRT
// file for outputFile, in configuration order.
func MissingLanguages(outputFile string, mapping language.Mapping) []string {
	dir := filepath.Dir(outputFile)
	base := stem(outputFile)
	found := make(map[string]struct{}, len(mapping))
	for _, folder := range missingFolders {
		entries, err := os.ReadDir(filepath.Join(dir, folder))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !hasSuffixFold(name, ".srt") || !hasPrefixFold(name, base) {
				continue
			}
			code := language.ExtractCode(name, base)
			for _, pair := range mapping {
				if language.IsMatch(code, pair.Two, pair.Three) {
					found[pair.Two] = struct{}{}
				}
			}
		}
	}
	var missing []string
	for _, pair := range mapping {
		if _, ok := found[pair.Two]; !ok {
			missing = append(missing, pair.Two)
		}
	}
	return missing
}
