// Package deploy publishes the viewer and its tiles to cloud storage with
// one sync command per target and reports the command's exit code.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jasonAVM/Map-Viewer/internal/metrics"
)

var ErrUnknownTarget = errors.New("unknown deploy target")

// Runner runs the sync command. gdal.ExecRunner satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// SyncError is a failed sync. ExitCode is the sync command's exit status.
type SyncError struct {
	Target   string
	ExitCode int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("deploy %s failed (exit %d): %v", e.Target, e.ExitCode, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code: 0 for nil, the sync command's
// own code for a *SyncError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *SyncError
	if errors.As(err, &se) && se.ExitCode > 0 {
		return se.ExitCode
	}
	return 1
}

type Syncer struct {
	log     zerolog.Logger
	runner  Runner
	cli     string
	profile string
	dryRun  bool
	targets []Target
	metrics *metrics.Metrics
}

type Options struct {
	// CLI is the cloud command line binary, "aws" by default.
	CLI     string
	Profile string
	DryRun  bool
	Targets []Target
}

func New(log zerolog.Logger, runner Runner, opts Options, m *metrics.Metrics) *Syncer {
	cli := strings.TrimSpace(opts.CLI)
	if cli == "" {
		cli = "aws"
	}
	return &Syncer{
		log:     log,
		runner:  runner,
		cli:     cli,
		profile: strings.TrimSpace(opts.Profile),
		dryRun:  opts.DryRun,
		targets: append([]Target(nil), opts.Targets...),
		metrics: m,
	}
}

func (s *Syncer) Targets() []Target { return append([]Target(nil), s.targets...) }

// Target looks up a target by name.
func (s *Syncer) Target(name string) (Target, error) {
	for _, t := range s.targets {
		if t.Name == name {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w %q", ErrUnknownTarget, name)
}

// Args builds the sync command line for t, without the binary.
func (s *Syncer) Args(t Target) []string {
	args := []string{"s3", "sync", t.Source, t.Destination}
	for _, p := range t.Exclude {
		args = append(args, "--exclude", p)
	}
	for _, p := range t.Include {
		args = append(args, "--include", p)
	}
	if t.Delete {
		args = append(args, "--delete")
	}
	if s.dryRun {
		args = append(args, "--dryrun")
	}
	if s.profile != "" {
		args = append(args, "--profile", s.profile)
	}
	return args
}

// Sync runs one sync for t. There is no retry.
func (s *Syncer) Sync(ctx context.Context, t Target) error {
	log := s.log.With().Str("target", t.Name).Logger()
	start := time.Now()

	log.Info().
		Str("source", t.Source).
		Str("destination", t.Destination).
		Bool("dry_run", s.dryRun).
		Msg("sync started")

	err := s.runner.Run(ctx, s.cli, s.Args(t)...)
	dur := time.Since(start)
	s.metrics.ObserveDeploySync(t.Name, err == nil, dur)

	if err != nil {
		se := &SyncError{Target: t.Name, ExitCode: exitStatus(err), Err: err}
		log.Error().Err(err).Int("exit_code", se.ExitCode).Dur("duration", dur).Msg("sync failed")
		return se
	}
	log.Info().Dur("duration", dur).Msg("sync finished")
	return nil
}

// Run syncs the named targets in order, or every target when names is
// empty. It writes one status line per target to out and stops at the first
// failure.
func (s *Syncer) Run(ctx context.Context, out io.Writer, names ...string) error {
	targets := s.targets
	if len(names) > 0 {
		targets = make([]Target, 0, len(names))
		for _, n := range names {
			t, err := s.Target(n)
			if err != nil {
				return err
			}
			targets = append(targets, t)
		}
	}

	for _, t := range targets {
		if err := s.Sync(ctx, t); err != nil {
			fmt.Fprintf(out, "%s deployment failed (exit code %d)\n", t.Name, ExitCode(err))
			return err
		}
		fmt.Fprintf(out, "%s deployed to %s\n", t.Name, t.Destination)
	}
	return nil
}

func exitStatus(err error) int {
	var st interface{ ExitStatus() int }
	if errors.As(err, &st) && st.ExitStatus() > 0 {
		return st.ExitStatus()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && ee.ExitCode() > 0 {
		return ee.ExitCode()
	}
	return 1
}
