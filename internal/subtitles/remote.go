package subtitles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"vtranscoder/internal/jobsource"
	"vtranscoder/internal/language"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/metrics"
	"vtranscoder/internal/state"
	"vtranscoder/internal/subtitles/opensubtitles"
)

const logoutTimeout = 10 * time.Second

// fetchMissing downloads SRT files for configured languages that have none.
// Failures for one language do not stop the others.
func (r *Resolver) fetchMissing(ctx context.Context, logger *slog.Logger, job jobsource.Job, subsDir string) {
	mapping := language.BuildMapping(r.cfg.Subtitles.Languages)
	missing := MissingLanguages(job.Output, mapping)
	if len(missing) == 0 {
		logger.Debug("no missing subtitle languages")
		return
	}

	provider, err := r.provider(r.cfg)
	if err != nil {
		logging.WarnWithContext(logger, "opensubtitles unavailable", "opensubtitles_config",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set opensubtitles.api_key and opensubtitles.app_name"),
		)
		return
	}

	hash, size, err := opensubtitles.MovieHash(job.Source)
	if err != nil {
		if errors.Is(err, opensubtitles.ErrFileTooSmall) {
			logger.Info("source too small for hash search", logging.String("source", job.Source))
		} else {
			logging.WarnWithContext(logger, "movie hash failed", "opensubtitles_hash_failed", logging.Error(err))
		}
		return
	}

	if err := provider.Login(ctx, r.cfg.OpenSubtitles.Username, r.cfg.OpenSubtitles.Password); err != nil {
		logging.WarnWithContext(logger, "opensubtitles login failed", "opensubtitles_login_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "remote subtitles skipped"),
		)
		return
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
		defer cancel()
		if err := provider.Logout(logoutCtx); err != nil {
			logger.Debug("opensubtitles logout failed", logging.Error(err))
		}
	}()

	output := stem(job.Output)
	for i, lang := range missing {
		if ctx.Err() != nil {
			return
		}
		r.report(job, func(p *state.SubtitleProgress) {
			p.Status = "Downloading " + lang + " subtitles"
			p.Processed, p.Total = i, len(missing)
		})
		target := filepath.Join(subsDir, fmt.Sprintf("%s.%s.srt", output, lang))
		written, err := r.fetchLanguage(ctx, provider, hash, size, lang, target)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			logging.WarnWithContext(logger, "subtitle download failed", "opensubtitles_download_failed",
				logging.String("language", lang),
				logging.Error(err),
			)
			metrics.RecordSubtitle("opensubtitles", "failed")
		case written:
			logger.Info("subtitle downloaded", logging.String("language", lang), logging.String("path", target))
			metrics.RecordSubtitle("opensubtitles", "written")
		default:
			logger.Info("no subtitle found", logging.String("language", lang))
			metrics.RecordSubtitle("opensubtitles", "not_found")
		}
	}
}

func (r *Resolver) fetchLanguage(ctx context.Context, provider Provider, hash string, size int64, lang, target string) (bool, error) {
	results, err := provider.Search(ctx, opensubtitles.SearchRequest{
		MovieHash:     hash,
		MovieByteSize: size,
		Languages:     []string{lang},
	})
	if err != nil {
		return false, err
	}
	best, ok := opensubtitles.Best(results)
	if !ok {
		return false, nil
	}
	data, err := provider.Download(ctx, best.FileID)
	if err != nil {
		return false, err
	}
	if r.cfg.OpenSubtitles.FixCorrupted {
		if repaired, changed := RepairMojibake(data, lang); changed {
			r.logger.Info("repaired subtitle encoding", logging.String("language", lang))
			data = repaired
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, err
	}
	if err := renameio.WriteFile(target, data, 0o644); err != nil {
		return false, fmt.Errorf("write subtitle: %w", err)
	}
	return true, nil
}
