package subtitles

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/language"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/state"
)

// SRTExists reports whether subsDir holds a "base*.srt" file whose name
// carries two or three as a dot-separated token after the base.
func SRTExists(subsDir, base, two, three string) bool {
	entries, err := os.ReadDir(subsDir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !hasSuffixFold(name, ".srt") {
			continue
		}
		name = name[:len(name)-len(".srt")]
		if !hasPrefixFold(name, base) {
			continue
		}
		remainder := strings.TrimLeft(name[len(base):], ".")
		for _, token := range strings.Split(remainder, ".") {
			if language.IsMatch(token, two, three) {
				return true
			}
		}
	}
	return false
}

// pickCandidate finds an extracted subtitle for a configured language,
// trying the 2-letter key, the 3-letter key and then a case-insensitive
// match. Non-SRT files are preferred within the chosen group.
func pickCandidate(set extractedSet, two, three string) (extractedFile, bool) {
	group := set[two]
	if len(group) == 0 {
		group = set[three]
	}
	if len(group) == 0 {
		keys := make([]string, 0, len(set))
		for key := range set {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			if language.IsMatch(key, two, three) && len(set[key]) > 0 {
				group = set[key]
				break
			}
		}
	}
	if len(group) == 0 {
		return extractedFile{}, false
	}
	for _, file := range group {
		if !isSRT(file.Path) {
			return file, true
		}
	}
	return group[0], true
}

func isSRT(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".srt")
}

// ConvertArgs builds the ffmpeg arguments converting input to SRT.
func ConvertArgs(input, output string) []string {
	return []string{"-n", "-i", input, "-f", "srt", output}
}

func (r *Resolver) convertMissing(ctx context.Context, logger *slog.Logger, job jobsource.Job, subsDir string, extracted extractedSet) {
	mapping := language.BuildMapping(r.cfg.Subtitles.Languages)
	base := stem(job.Source)
	for i, pair := range mapping {
		if ctx.Err() != nil {
			return
		}
		r.report(job, func(p *state.SubtitleProgress) {
			p.Status = "Converting " + pair.Two + " to SRT"
			p.Processed, p.Total = i, len(mapping)
		})
		if SRTExists(subsDir, base, pair.Two, pair.Three) {
			logger.Debug("srt already present", logging.String("language", pair.Two))
			continue
		}
		candidate, ok := pickCandidate(extracted, pair.Two, pair.Three)
		if !ok {
			logger.Debug("no extracted subtitle to convert", logging.String("language", pair.Two))
			continue
		}
		if isSRT(candidate.Path) {
			continue
		}
		output := filepath.Join(subsDir, base+"."+candidate.Language+".srt")
		if fileExists(output) {
			continue
		}
		r.convertOne(ctx, logger, candidate, output)
	}
}

func (r *Resolver) convertOne(ctx context.Context, logger *slog.Logger, candidate extractedFile, output string) {
	if err := r.runFFmpeg(ctx, logger, ConvertArgs(candidate.Path, output)); err != nil {
		if ctx.Err() != nil {
			removeBestEffort(logger, output)
			return
		}
		logging.WarnWithContext(logger, "subtitle conversion failed", "subtitle_convert_failed",
			logging.String("input", candidate.Path),
			logging.Error(err),
		)
		metrics.RecordSubtitle("convert", "failed")
		return
	}
	if !fileExists(output) {
		logging.WarnWithContext(logger, "subtitle conversion produced no file", "subtitle_convert_missing",
			logging.String("output", output),
		)
		metrics.RecordSubtitle("convert", "failed")
		return
	}
	if !keepIfSized(logger, output) {
		metrics.RecordSubtitle("convert", "undersized")
		return
	}
	logger.Info("subtitle converted to srt", logging.String("path", output))
	metrics.RecordSubtitle("convert", "written")
}
