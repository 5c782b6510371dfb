// httpfs serves files from a directory over a minimal HTTP/1.1 GET/PUT
// protocol, one request per connection, with a fixed pool of workers.
//
// Usage:
//
//	httpfs [-t threads] [--config path] [--log-level level] [--root dir] <port>
//	httpfs init [--config path] [--force]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/marmos91/httpfs/internal/logger"
	"github.com/marmos91/httpfs/pkg/config"
	"github.com/marmos91/httpfs/pkg/server"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds everything taken from the command line. Empty strings mean
// "not given": the config value applies.
type options struct {
	configPath string
	logLevel   string
	root       string
	threads    string
	port       int
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:], stdout, stderr)
	}

	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: failed to load configuration: %v\n", err)
		return 1
	}

	applyOptions(cfg, opts, stderr)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "error: invalid configuration: %v\n", err)
		return 1
	}

	if err := logger.Configure(cfg.Logging.Level, logger.Format(cfg.Logging.Format), cfg.Logging.Output); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		logger.Error("%v", err)
		return 1
	}
	return 0
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseArgs parses flags and the port argument.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	var opts options

	fs := newFlagSet("httpfs", stderr)
	fs.StringVarP(&opts.threads, "threads", "t", "", "number of worker threads (default from config, 4)")
	fs.StringVar(&opts.configPath, "config", "", "path to config file (default $XDG_CONFIG_HOME/httpfs/config.yaml)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	fs.StringVar(&opts.root, "root", "", "directory to serve (default from config, the working directory)")
	fs.Usage = func() { printUsage(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) != 1 {
		printUsage(fs, stderr)
		return nil, errors.New("exactly one <port> argument is required")
	}

	port, err := strconv.Atoi(rest[0])
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port %q: must be 1-65535", rest[0])
	}
	opts.port = port

	return &opts, nil
}

// applyOptions overlays command line values on the loaded configuration.
func applyOptions(cfg *config.Config, opts *options, stderr io.Writer) {
	httpCfg := &cfg.Adapters.HTTP
	httpCfg.Enabled = true
	httpCfg.Port = opts.port

	if opts.threads != "" {
		n, err := strconv.Atoi(opts.threads)
		if err != nil || n < 1 {
			fmt.Fprintf(stderr, "warning: ignoring invalid thread count %q, using %d\n", opts.threads, httpCfg.Threads)
		} else {
			// an unconfigured queue tracks the thread count
			if httpCfg.QueueCapacity == httpCfg.Threads {
				httpCfg.QueueCapacity = n
			}
			httpCfg.Threads = n
		}
	}

	if opts.root != "" {
		cfg.Store.Type = "filesystem"
		cfg.Store.Filesystem["path"] = opts.root
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
		config.ApplyDefaults(cfg)
	}
}

// serve builds the store, lock registry, metrics and adapters from cfg and
// runs them until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	st, err := config.CreateStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}

	locks, err := config.CreateLockRegistry(&cfg.Locks)
	if err != nil {
		return err
	}

	metricsResult := config.InitializeMetrics(cfg)

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		return err
	}

	srv := server.New(st, locks)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to register adapter: %w", err)
		}
	}
	if metricsResult.Server != nil {
		srv.SetMetricsServer(metricsResult.Server)
	}

	logger.Info("httpfs serving %v on port %d with %d thread(s)",
		cfg.Store.Filesystem["path"], cfg.Adapters.HTTP.Port, cfg.Adapters.HTTP.Threads)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runInit(args []string, stdout, stderr io.Writer) int {
	var configPath string
	var force bool

	fs := newFlagSet("httpfs init", stderr)
	fs.StringVar(&configPath, "config", "", "where to write the config file (default $XDG_CONFIG_HOME/httpfs/config.yaml)")
	fs.BoolVar(&force, "force", false, "overwrite an existing config file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	var err error
	if configPath == "" {
		configPath, err = config.InitConfig(force)
	} else {
		err = config.InitConfigToPath(configPath, force)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Configuration written to %s\n", configPath)
	return 0
}

func printUsage(fs *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `Usage:
  httpfs [flags] <port>
  httpfs init [--config path] [--force]

Serves GET and PUT requests for files below the store root.

Flags:
`)
	fs.PrintDefaults()
}
