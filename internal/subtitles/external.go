package subtitles

import (
	"log/slog"
	"os"
	"path/filepath"

	"vtranscoder/internal/fileutil"
	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/language"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/metrics"
)

// externalFolders lists where sidecar subtitles are searched, relative to
// the source directory.
var externalFolders = []string{"", "subtitles", "subs"}

// copyExternal copies sidecar subtitles that sit next to the source into the
// subs folder and returns how many were copied.
func (r *Resolver) copyExternal(logger *slog.Logger, job jobsource.Job, subsDir string) int {
	sourceDir := filepath.Dir(job.Source)
	base := stem(job.Source)
	mapping := language.BuildMapping(r.cfg.Subtitles.Languages)

	copied := 0
	for _, folder := range externalFolders {
		dir := filepath.Join(sourceDir, folder)
		if filepath.Clean(dir) == filepath.Clean(subsDir) {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, format := range r.cfg.Subtitles.Formats {
			for _, entry := range entries {
				name := entry.Name()
				if !entry.Type().IsRegular() || !hasPrefixFold(name, base) || !hasSuffixFold(name, "."+format) {
					continue
				}
				if len(mapping) > 0 {
					if code := language.ExtractCode(name, base); code != "" && !mapping.Matches(code) {
						continue
					}
				}
				if r.copyOne(logger, filepath.Join(dir, name), filepath.Join(subsDir, name)) {
					copied++
				}
			}
		}
	}
	return copied
}

func (r *Resolver) copyOne(logger *slog.Logger, src, dst string) bool {
	if !r.cfg.Subtitles.OverwriteExisting && fileExists(dst) {
		logger.Debug("external subtitle already present", logging.String("path", dst))
		return false
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		logging.WarnWithContext(logger, "create subtitle folder failed", "subtitle_folder_failed",
			logging.String("path", filepath.Dir(dst)),
			logging.Error(err),
		)
		return false
	}
	if err := fileutil.CopyFile(src, dst); err != nil {
		logging.WarnWithContext(logger, "external subtitle copy failed", "subtitle_copy_failed",
			logging.String("source", src),
			logging.Error(err),
		)
		metrics.RecordSubtitle("external", "failed")
		return false
	}
	logger.Info("external subtitle copied", logging.String("source", src), logging.String("destination", dst))
	metrics.RecordSubtitle("external", "written")
	return true
}
