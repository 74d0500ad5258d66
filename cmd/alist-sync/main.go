package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/alist-sync/internal/config"
	"github.com/bamsammich/alist-sync/internal/engine"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	verbose    bool
	quiet      bool
	noProgress bool
	tui        bool
	logFile    string

	name      string
	cacheDir  string
	storeKind string
	storePath string
	webhook   string
	userAgent string
	bwLimit   string

	workers         int
	daemon          bool
	debug           bool
	idleTimeout     time.Duration
	submitInterval  time.Duration
	pollInterval    time.Duration
	timeout         time.Duration
	recheckRetries  uint
	recheckInterval time.Duration
	emptyUndoneDone bool

	// recheckRetriesSet tells an explicit zero from "per operation".
	recheckRetriesSet bool

	user     string
	password string
	token    string
	insecure bool

	cfg      config.Config
	closeLog func() error
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "alist-sync",
		Short: "Resumable copy and mirror between Alist servers and local directories",
		Long: `alist-sync keeps directories in step across Alist (or OpenList) servers.

  copy    ask the server to copy missing files into one or more targets
  mirror  download and re-upload changed files, optionally deleting extras
  sync    fill in the files each member of a group of locations is missing
  resume  finish the work items an interrupted mirror left behind
  report  sum the completion log per owner`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.loadConfig(cmd); err != nil {
				return err
			}
			return o.setupLogging()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/alist-sync/config.toml)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&o.quiet, "quiet", "q", false, "suppress all output except errors")
	pf.BoolVar(&o.noProgress, "no-progress", false, "disable the progress display")
	pf.BoolVar(&o.tui, "tui", false, "full-screen progress display (terminal only)")
	pf.StringVar(&o.logFile, "log", "", "write a rotated JSON log to FILE")

	pf.StringVar(&o.name, "name", "", "owner name recorded with finished items (default: hostname)")
	pf.StringVar(&o.cacheDir, "cache-dir", "", "directory for download scratch files (default: temp dir)")
	pf.StringVar(&o.storeKind, "store", "sqlite", "job store: sqlite or memory")
	pf.StringVar(&o.storePath, "store-path", "", "sqlite job store path (default: $XDG_STATE_HOME/alist-sync/jobs.db)")
	pf.StringVar(&o.webhook, "webhook", "", "post a run summary to this webhook URL")
	pf.StringVar(&o.userAgent, "user-agent", "", "User-Agent sent to servers")
	pf.StringVar(&o.bwLimit, "bwlimit", "", "download bandwidth limit (e.g. 10M, 1G)")

	pf.IntVarP(&o.workers, "workers", "n", engine.DefaultWorkers, "number of concurrent work items")
	pf.BoolVar(&o.daemon, "daemon", false, "keep running after the queue drains")
	pf.BoolVar(&o.debug, "debug", false, "stop on the first failed item")
	pf.DurationVar(&o.idleTimeout, "idle-timeout", engine.DefaultIdleTimeout, "with an empty queue, exit once this long has passed since start")
	pf.DurationVar(&o.submitInterval, "submit-interval", engine.DefaultSubmitInterval, "pause between copy task submissions")
	pf.DurationVar(&o.pollInterval, "poll-interval", engine.DefaultReconcilePoll, "how often remote task queues are polled")
	pf.DurationVar(&o.timeout, "timeout", 30*time.Second, "limit for each API call and for response headers; transfers are unbounded")
	pf.UintVar(&o.recheckRetries, "recheck-retries", 0, "retries when confirming a remote change (default: per operation)")
	pf.DurationVar(&o.recheckInterval, "recheck-interval", 0, "pause between rechecks (default: per operation)")
	pf.BoolVar(&o.emptyUndoneDone, "empty-undone-means-done", false, "treat an empty undone task list as completion")

	pf.StringVarP(&o.user, "user", "u", "", "Alist username for URL locations")
	pf.StringVar(&o.password, "password", "", "Alist password (or set ALIST_SYNC_PASSWORD)")
	pf.StringVar(&o.token, "token", "", "Alist token (or set ALIST_SYNC_TOKEN)")
	pf.BoolVar(&o.insecure, "insecure", false, "skip TLS certificate verification")

	root.AddCommand(
		newCopyCmd(o),
		newMirrorCmd(o),
		newSyncCmd(o),
		newResumeCmd(o),
		newReportCmd(o),
		newConfigCmd(),
		newDocsCmd(),
	)
	return root
}

func run() int {
	o := &options{}
	err := newRootCmd(o).Execute()
	if o.closeLog != nil {
		if cerr := o.closeLog(); cerr != nil {
			fmt.Fprintf(os.Stderr, "close log: %v\n", cerr)
		}
	}
	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// loadConfig reads the config file and environment, then applies their
// defaults to flags not set on the command line.
func (o *options) loadConfig(cmd *cobra.Command) error {
	path := o.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	o.cfg = cfg
	applyConfigDefaults(cmd, cfg.Defaults, o)

	if o.password == "" {
		o.password = os.Getenv(config.EnvPrefix + "PASSWORD")
	}
	if o.token == "" {
		o.token = os.Getenv(config.EnvPrefix + "TOKEN")
	}
	return nil
}

// applyConfigDefaults applies config file defaults for flags not explicitly
// set on the CLI.
//
//nolint:gocyclo // flat list of flag/default pairs
func applyConfigDefaults(cmd *cobra.Command, d config.DefaultsConfig, o *options) {
	unset := func(name string) bool { return !cmd.Flags().Changed(name) }

	setString := func(name string, dst *string, v *string) {
		if unset(name) && v != nil {
			*dst = *v
		}
	}
	setDuration := func(name string, dst *time.Duration, v *time.Duration) {
		if unset(name) && v != nil {
			*dst = *v
		}
	}
	setBool := func(name string, dst *bool, v *bool) {
		if unset(name) && v != nil {
			*dst = *v
		}
	}

	setString("name", &o.name, d.Name)
	setString("cache-dir", &o.cacheDir, d.CacheDir)
	setString("store", &o.storeKind, d.Store)
	setString("store-path", &o.storePath, d.StorePath)
	setString("log", &o.logFile, d.LogFile)
	setString("webhook", &o.webhook, d.Webhook)
	setString("user-agent", &o.userAgent, d.UserAgent)
	setString("bwlimit", &o.bwLimit, d.BWLimit)

	if unset("workers") && d.Workers != nil {
		o.workers = *d.Workers
	}
	if unset("recheck-retries") && d.RecheckRetries != nil {
		o.recheckRetries = *d.RecheckRetries
	}
	o.recheckRetriesSet = !unset("recheck-retries") || d.RecheckRetries != nil
	setDuration("idle-timeout", &o.idleTimeout, d.IdleTimeout)
	setDuration("submit-interval", &o.submitInterval, d.SubmitInterval)
	setDuration("poll-interval", &o.pollInterval, d.PollInterval)
	setDuration("timeout", &o.timeout, d.Timeout)
	setDuration("recheck-interval", &o.recheckInterval, d.RecheckInterval)

	setBool("daemon", &o.daemon, d.Daemon)
	setBool("debug", &o.debug, d.Debug)
	setBool("tui", &o.tui, d.TUI)
	setBool("empty-undone-means-done", &o.emptyUndoneDone, d.EmptyUndoneMeansDone)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
