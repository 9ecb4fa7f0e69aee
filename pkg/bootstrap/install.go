package bootstrap

import (
	"context"
	"time"

	"github.com/cuemby/nomad-bootstrap/pkg/install"
	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/storage"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

// Install lays down the agent per plan. The running binary is copied next
// to the agent as the helper unless the plan names another source.
func (r *Runner) Install(ctx context.Context, plan types.InstallationPlan) (report *install.Report, err error) {
	rec := &storage.Record{
		Kind:        storage.KindInstall,
		StartedAt:   time.Now().UTC(),
		Version:     plan.Version,
		DownloadURL: plan.DownloadURL,
	}
	defer func() {
		if report != nil {
			rec.DownloadURL = report.DownloadURL
			rec.Attempts = report.FetchAttempts
			rec.Changed = report.Changed()
		}
		r.finish(CommandInstall, rec, err)
	}()

	logger := log.WithComponent(CommandInstall)

	if plan.HelperSource == "" && r.executable != nil {
		if exe, exeErr := r.executable(); exeErr == nil {
			plan.HelperSource = exe
		} else {
			logger.Warn().Err(exeErr).Msg("Cannot locate own executable, helper will not be installed")
		}
	}

	installer := install.New(r.sys, r.fetcher, install.WithRetryOptions(r.retryOpts...))

	err = step(CommandInstall, "install", func() error {
		var ierr error
		report, ierr = installer.Install(ctx, plan)
		return ierr
	})
	if err != nil {
		return report, err
	}

	for _, s := range report.Steps {
		logger.Info().
			Str("step", s.Name).
			Bool("changed", s.Changed).
			Msg(s.Message)
	}
	return report, nil
}
