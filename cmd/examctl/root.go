package main

import (
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/certexam-service/internal/client"
	"github.com/kjstillabower/certexam-service/internal/config"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	backendURL string
	timeout    time.Duration
	timezone   string
	verbose    bool
}

// env is what subcommands run against. Tests replace newBackend and clock.
type env struct {
	opts       *options
	clock      clockwork.Clock
	newBackend func(o *options) (client.Backend, error)
}

func (e *env) location() *time.Location {
	return config.LoadLocation(e.opts.timezone)
}

func (e *env) now() time.Time {
	return e.clock.Now().In(e.location())
}

func (e *env) logger() *zap.Logger {
	if !e.opts.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func defaultBackend(o *options) (client.Backend, error) {
	return client.New(client.Config{
		BaseURL:       o.backendURL,
		Timeout:       o.timeout,
		RetryAttempts: 2,
	})
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&env{clock: clockwork.NewRealClock(), newBackend: defaultBackend})
}

func newRootCmdWith(e *env) *cobra.Command {
	e.opts = &options{}
	root := &cobra.Command{
		Use:           "examctl",
		Short:         "Query certification exam schedules and exam-day weather",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&e.opts.backendURL, "backend-url", os.Getenv("BACKEND_URL"), "exam backend base URL (env BACKEND_URL)")
	flags.DurationVar(&e.opts.timeout, "timeout", 10*time.Second, "backend request timeout")
	flags.StringVar(&e.opts.timezone, "tz", "Asia/Seoul", "time zone used for today")
	flags.BoolVarP(&e.opts.verbose, "verbose", "v", false, "log backend calls to stderr")

	root.AddCommand(
		newRegionCmd(e),
		newDDayCmd(e),
		newWeatherCmd(e),
		newUpcomingCmd(e),
		newCertCmd(e),
	)
	return root
}
