package session

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/providers/policy"
	"go.uber.org/zap"
)

var errDownloadsDisabled = errors.New("downloads are disabled")

func (s *Session) fileProvided(id engine.TargetID, filenames []string) {
	t, ok := s.registry.Get(id)
	if !ok {
		return
	}
	files, ok := s.uploads.Resolve(id, filenames)
	if !ok {
		return
	}
	s.submit(t, s.opts.CommandTimeout, func(ctx context.Context, target engine.Target) {
		if err := target.AcceptFiles(ctx, files); err != nil {
			s.engineFailed(id, "accept files", err)
			return
		}
		s.logger.Debug("Files provided", zap.String("tab_id", string(id)), zap.Int("count", len(files)))
		s.uploads.ScheduleCleanup(files)
	})
}

func (s *Session) cancelFileRequest(id engine.TargetID) {
	if !s.uploads.Cancel(id) {
		return
	}
	t, ok := s.registry.Get(id)
	if !ok {
		return
	}
	s.submit(t, s.opts.CommandTimeout, func(ctx context.Context, target engine.Target) {
		s.engineFailed(id, "cancel file chooser", target.CancelFileChooser(ctx))
	})
}

func (s *Session) downloadURL(rawURL string) {
	if rawURL == "" {
		return
	}
	if s.deps.Fetcher == nil {
		s.emit(downloadFailed(errDownloadsDisabled))
		return
	}

	s.spawn(func(ctx context.Context) {
		name, err := s.deps.Fetcher.Fetch(ctx, rawURL, s.downloads, s.watcher.MarkNotified)
		if err != nil {
			if errors.Is(err, policy.ErrBlocked) {
				s.deps.Metrics.RecordPolicyBlock("guard")
			}
			s.logger.Info("Download failed", zap.String("url", rawURL), zap.Error(err))
			s.post(func() { s.emit(downloadFailed(err)) })
			return
		}
		s.post(func() { s.downloadCompleted(name, "fetch") })
	})
}

// onDownload is called by the download watcher.
func (s *Session) onDownload(name string) {
	s.post(func() { s.downloadCompleted(name, "browser") })
}

func (s *Session) downloadCompleted(name, source string) {
	s.deps.Metrics.RecordDownload(source)
	s.emit(downloadFinished(name))
	s.scanDownload(name)
}

// scanDownload submits a finished download for an advisory threat report.
// It never holds back the download itself.
func (s *Session) scanDownload(name string) {
	if !s.config.ScanDownloads || s.vtKey == "" || s.deps.Scanner == nil {
		return
	}
	key := s.vtKey
	path := filepath.Join(s.downloads, name)
	s.spawn(func(ctx context.Context) {
		report, err := s.deps.Scanner.ScanFile(ctx, key, path)
		if err != nil {
			s.logger.Debug("File scan failed", zap.String("file", name), zap.Error(err))
			return
		}
		if report != "" {
			s.post(func() { s.emit(threatReport(report, name)) })
		}
	})
}
