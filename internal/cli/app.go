package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"sdburn/internal/burn"
	"sdburn/internal/config"
	"sdburn/internal/executor"
	"sdburn/internal/failure"
	"sdburn/internal/image"
	"sdburn/internal/logging"
	"sdburn/internal/orchestrator"
	"sdburn/internal/platform"
	"sdburn/internal/progress"
	"sdburn/internal/workspace"
)

const sizeCacheEntries = 16

// app is everything a command needs, built once from the loaded config.
type app struct {
	cfg  *config.Config
	log  *logrus.Logger
	ws   *workspace.Workspace
	exec *executor.Executor
	http *http.Client
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.New(afero.NewOsFs(), cfg.WorkDir, log)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:  cfg,
		log:  log,
		ws:   ws,
		exec: executor.New(log),
		http: &http.Client{},
	}
	return a, nil
}

func (a *app) platform() (platform.Platform, error) {
	return platform.New(platform.Options{
		Exec:      a.exec,
		Workspace: a.ws,
		ToolsDir:  a.cfg.ToolsDir,
		Log:       a.log,
	})
}

func (a *app) orchestrator(p platform.Platform) (*orchestrator.Orchestrator, error) {
	sizes, err := image.NewSizeCache(a.ws.Fs(), sizeCacheEntries, a.log)
	if err != nil {
		return nil, err
	}
	opts := orchestrator.Options{
		Bounds:     platform.Bounds{Min: a.cfg.MinDiskSize, Max: a.cfg.MaxDiskSize},
		RetryDelay: a.cfg.RetryDelay,
		Burn: burn.Options{
			ReportInterval:  a.cfg.ReportInterval,
			PollInterval:    a.cfg.PollInterval,
			PollDelay:       a.cfg.PollDelay,
			ReapGrace:       a.cfg.ReapGrace,
			Estimator:       progress.Estimator{Smoothing: a.cfg.ETASmoothing},
			ETAUnknownAfter: a.cfg.ETAUnknownAfter,
		},
	}
	return orchestrator.New(p, a.exec, sizes, opts, a.log), nil
}

func (a *app) discoverer() (image.Discoverer, error) {
	switch a.cfg.ImageSource {
	case config.SourceManifest:
		return image.NewManifestDiscoverer(a.cfg.ManifestURL, a.http, a.log), nil
	default:
		return image.NewGitHubDiscoverer(nil, a.http, a.cfg.GitHubOwner, a.cfg.GitHubRepo, a.cfg.AssetPattern, a.log)
	}
}

// fetch downloads the latest image into the workspace and returns its path.
func (a *app) fetch(ctx context.Context, report image.ProgressFunc) (image.Source, string, error) {
	d, err := a.discoverer()
	if err != nil {
		return image.Source{}, "", err
	}
	src, err := d.Latest(ctx)
	if err != nil {
		return image.Source{}, "", err
	}
	if err := a.ws.EnsureImageDir(); err != nil {
		return src, "", failure.Wrap(failure.FreeSpaceError, err)
	}
	dest := a.ws.ImagePath(src.Filename)
	if err := image.NewDownloader(a.ws.Fs(), a.http, a.log).Download(ctx, src, dest, report); err != nil {
		return src, "", err
	}
	return src, dest, nil
}

// recordFailure keeps the diagnostic of a categorized failure in the
// workspace so that last-error can show it later.
func (a *app) recordFailure(err error) {
	cat, ok := failure.CategoryOf(err)
	if !ok {
		return
	}
	diag := failure.DiagnosticOf(err)
	if diag == "" {
		diag = err.Error()
	}
	path, werr := a.ws.WriteDiagnostic(string(cat), diag)
	if werr != nil {
		a.log.WithError(werr).Warn("could not save failure report")
		return
	}
	a.log.WithField("path", path).Info("failure report saved")
}
