package subtitles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/media/probe"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/state"
)

// PlannedStream is one embedded stream scheduled for extraction.
type PlannedStream struct {
	Stream   probe.SubtitleStream
	Format   string
	FileName string
}

// extractedFile is a subtitle file available in the subs folder after
// extraction.
type extractedFile struct {
	Path     string
	Language string
	Codec    string
}

// extractedSet groups extracted files by stream language.
type extractedSet map[string][]extractedFile

func (s extractedSet) add(file extractedFile) {
	s[file.Language] = append(s[file.Language], file)
}

// ExtractionPlan names the output file for each stream. The first stream of
// a language and format is "base.lang.ext"; later ones are numbered by how
// many came before, as in "base.1.lang.ext".
func ExtractionPlan(base string, streams []probe.SubtitleStream, allowed []string) []PlannedStream {
	counts := make(map[string]int)
	plan := make([]PlannedStream, 0, len(streams))
	for _, stream := range streams {
		format := DetermineOutputFormat(stream.Codec, allowed)
		key := stream.Language + "." + format
		name := fmt.Sprintf("%s.%s.%s", base, stream.Language, format)
		if n := counts[key]; n > 0 {
			name = fmt.Sprintf("%s.%d.%s.%s", base, n, stream.Language, format)
		}
		counts[key]++
		plan = append(plan, PlannedStream{Stream: stream, Format: format, FileName: name})
	}
	return plan
}

// ExtractArgs builds the ffmpeg arguments that write one stream to output.
func ExtractArgs(input string, planned PlannedStream, output string, overwrite bool) []string {
	args := []string{overwriteFlag(overwrite), "-i", input, "-map", fmt.Sprintf("0:%d", planned.Stream.Index)}
	if IsNativeFormat(planned.Stream.Codec, planned.Format) {
		args = append(args, "-c", "copy")
	} else {
		args = append(args, "-f", FFmpegFormat(planned.Format))
	}
	return append(args, output)
}

func (r *Resolver) extractEmbedded(ctx context.Context, logger *slog.Logger, job jobsource.Job, subsDir string) extractedSet {
	extracted := make(extractedSet)
	info, err := probe.Run(ctx, r.exec, r.ffmpeg(), job.Source)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(logger, "subtitle probe failed", "subtitle_probe_failed",
				logging.String("source", job.Source),
				logging.Error(err),
				logging.String(logging.FieldImpact, "embedded subtitles skipped"),
			)
			metrics.RecordSubtitle("extract", "probe_failed")
		}
		return extracted
	}
	if len(info.Subtitles) == 0 {
		logger.Info("no subtitle streams found", logging.String("source", job.Source))
		r.report(job, func(p *state.SubtitleProgress) {
			p.Status = "No subtitle streams found"
			p.Processed, p.Total = 0, 0
		})
		return extracted
	}
	if err := os.MkdirAll(subsDir, 0o755); err != nil {
		logging.WarnWithContext(logger, "create subtitle folder failed", "subtitle_folder_failed",
			logging.String("path", subsDir),
			logging.Error(err),
		)
		return extracted
	}

	plan := ExtractionPlan(stem(job.Source), info.Subtitles, r.cfg.Subtitles.Formats)
	logger.Info("extracting subtitle streams", logging.Int("streams", len(plan)))
	for i, planned := range plan {
		if ctx.Err() != nil {
			return extracted
		}
		r.report(job, func(p *state.SubtitleProgress) {
			p.Status = fmt.Sprintf("Extracting %s subtitle", planned.Stream.Language)
			p.Processed, p.Total = i, len(plan)
		})
		output := filepath.Join(subsDir, planned.FileName)
		if r.extractStream(ctx, logger, job.Source, planned, output) {
			extracted.add(extractedFile{Path: output, Language: planned.Stream.Language, Codec: planned.Stream.Codec})
		}
	}
	r.report(job, func(p *state.SubtitleProgress) {
		p.Status = "Extraction complete"
		p.Processed, p.Total = len(plan), len(plan)
	})
	return extracted
}

// extractStream writes one stream and reports whether output is usable.
// Existing files are kept and counted when overwriting is off.
func (r *Resolver) extractStream(ctx context.Context, logger *slog.Logger, input string, planned PlannedStream, output string) bool {
	overwrite := r.cfg.Subtitles.OverwriteExisting
	if !overwrite && fileExists(output) {
		logger.Info("subtitle already exists; skipping extraction", logging.String("path", output))
		metrics.RecordSubtitle("extract", "exists")
		return true
	}
	err := r.runFFmpeg(ctx, logger, ExtractArgs(input, planned, output, overwrite))
	if err != nil {
		if ctx.Err() != nil {
			removeBestEffort(logger, output)
			return false
		}
		logging.WarnWithContext(logger, "subtitle extraction failed", "subtitle_extract_failed",
			logging.Int("stream", planned.Stream.Index),
			logging.String("language", planned.Stream.Language),
			logging.Error(err),
		)
		metrics.RecordSubtitle("extract", "failed")
		removeBestEffort(logger, output)
		return false
	}
	if !keepIfSized(logger, output) {
		metrics.RecordSubtitle("extract", "undersized")
		return false
	}
	logger.Info("subtitle extracted",
		logging.String("path", output),
		logging.String("language", planned.Stream.Language),
		logging.String("codec", planned.Stream.Codec),
	)
	metrics.RecordSubtitle("extract", "written")
	return true
}
