package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/udc-experiments/internal/application"
	"github.com/eugenenazirov/udc-experiments/internal/config"
	"github.com/eugenenazirov/udc-experiments/internal/experiment"
	"github.com/eugenenazirov/udc-experiments/internal/logging"
	"github.com/eugenenazirov/udc-experiments/internal/registry"
	"github.com/eugenenazirov/udc-experiments/internal/workspace"
)

var signalNotify = signal.Notify

var errValidationFailed = errors.New("validation failed")

type cli struct {
	app       *kingpin.Application
	out       io.Writer
	fs        afero.Fs
	lookupEnv func(string) (string, bool)

	configFile *string
	cuda       *string
	system     *string
	debug      *bool

	list *kingpin.CmdClause

	show       *kingpin.CmdClause
	showNames  *[]string
	showWith   *map[string]string
	showFormat *string

	validate *kingpin.CmdClause

	prepare      *kingpin.CmdClause
	prepareNames *[]string
	prepareWith  *map[string]string
	prepareCheck *bool

	serve     *kingpin.CmdClause
	port      *string
	rateRPS   *float64
	rateBurst *int
}

func newCLI(out io.Writer, fs afero.Fs, lookupEnv func(string) (string, bool)) *cli {
	c := &cli{
		app:       kingpin.New("udcconf", "Experiment configurations for UDC image restoration training runs"),
		out:       out,
		fs:        fs,
		lookupEnv: lookupEnv,
	}
	c.app.UsageWriter(out)

	c.configFile = c.app.Flag("config", "Path to YAML configuration file").String()
	c.cuda = c.app.Flag("cuda", "CUDA availability: auto, on or off").String()
	c.system = c.app.Flag("system", "Machine the experiments run on").String()
	c.debug = c.app.Flag("debug", "Enable debug logging").Bool()

	c.list = c.app.Command("list", "List named configurations")

	c.show = c.app.Command("show", "Resolve named configurations and print the result")
	c.showNames = c.show.Arg("name", "Named configurations, applied in order").Strings()
	c.showWith = c.show.Flag("with", "Update a single key, e.g. --with batch_size=8").Short('w').StringMap()
	c.showFormat = c.show.Flag("format", "Output format").Default("yaml").Enum("yaml", "json")

	c.validate = c.app.Command("validate", "Resolve the base and every named configuration")

	c.prepare = c.app.Command("prepare", "Create the artifact directories of an experiment")
	c.prepareNames = c.prepare.Arg("name", "Named configurations, applied in order").Strings()
	c.prepareWith = c.prepare.Flag("with", "Update a single key, e.g. --with exp_name=trial").Short('w').StringMap()
	c.prepareCheck = c.prepare.Flag("check", "Fail when training data directories are missing").Default("true").Bool()

	c.serve = c.app.Command("serve", "Serve resolved configurations over HTTP")
	c.port = c.serve.Flag("port", "HTTP port exposed by the service").String()
	c.rateRPS = c.serve.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	c.rateBurst = c.serve.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	return c
}

func main() {
	c := newCLI(os.Stdout, afero.NewOsFs(), os.LookupEnv)
	if err := c.run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "udcconf:", err)
		os.Exit(1)
	}
}

func (c *cli) run(args []string) error {
	command, err := c.app.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.fs, c.overrides())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(logging.WithDebug(*c.debug))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	env := cfg.Environment(c.fs, c.lookupEnv)
	logger.Debug("environment resolved",
		zap.Bool("cuda_available", env.CUDAAvailable),
		zap.Any("defaults", env.Defaults),
	)

	if command == c.serve.FullCommand() {
		return c.runServe(cfg, env, logger)
	}

	reg, err := application.NewRegistry(cfg, env)
	if err != nil {
		return err
	}

	switch command {
	case c.list.FullCommand():
		return c.runList(reg)
	case c.show.FullCommand():
		return c.runShow(reg)
	case c.validate.FullCommand():
		return c.runValidate(reg, logger)
	case c.prepare.FullCommand():
		return c.runPrepare(reg, logger)
	}
	return fmt.Errorf("unknown command %q", command)
}

func (c *cli) overrides() *config.CLIOverrides {
	overrides := &config.CLIOverrides{
		ConfigFile: *c.configFile,
		CUDA:       c.cuda,
		System:     c.system,
	}

	if *c.port != "" {
		overrides.Port = c.port
	}

	if *c.rateRPS >= 0 {
		overrides.RateLimitRPS = c.rateRPS
	}

	if *c.rateBurst >= 0 {
		overrides.RateLimitBurst = c.rateBurst
	}

	return overrides
}

func (c *cli) runList(reg registry.Registry) error {
	table := tablewriter.NewWriter(c.out)
	table.Header("Name", "Doc", "Keys")
	for _, named := range reg.List() {
		if err := table.Append([]string{named.Name, named.Doc, fmt.Sprint(len(named.Overrides))}); err != nil {
			return err
		}
	}
	return table.Render()
}

func (c *cli) runShow(reg registry.Registry) error {
	params, err := resolve(reg, *c.showNames, *c.showWith)
	if err != nil {
		return err
	}

	if *c.showFormat == "json" {
		encoder := json.NewEncoder(c.out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(params)
	}

	encoder := yaml.NewEncoder(c.out)
	encoder.SetIndent(2)
	if err := encoder.Encode(params); err != nil {
		return err
	}
	return encoder.Close()
}

func (c *cli) runValidate(reg registry.Registry, logger *zap.Logger) error {
	names := []string{registry.BaseName}
	for _, named := range reg.List() {
		names = append(names, named.Name)
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Name", "Status", "Details")

	failed := 0
	for _, name := range names {
		status, details := "ok", ""
		params, err := reg.Resolve([]string{name}, nil)
		if err != nil {
			failed++
			status, details = "invalid", err.Error()
			logger.Debug("named config failed to resolve", zap.String("name", name), zap.Error(err))
		} else {
			details = params.OutputDir
		}
		if err := table.Append([]string{name, status, details}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d configurations", errValidationFailed, failed, len(names))
	}
	return nil
}

func (c *cli) runPrepare(reg registry.Registry, logger *zap.Logger) error {
	params, err := resolve(reg, *c.prepareNames, *c.prepareWith)
	if err != nil {
		return err
	}

	issues, err := workspace.Check(c.fs, params)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		fmt.Fprintln(c.out, issue.String())
	}
	if *c.prepareCheck && workspace.HasErrors(issues) {
		return fmt.Errorf("%w: missing training data for %s", errValidationFailed, params.ExpName)
	}

	dirs, err := workspace.Prepare(c.fs, params)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		fmt.Fprintln(c.out, dir)
	}
	logger.Info("workspace prepared", zap.String("exp_name", params.ExpName), zap.Strings("dirs", dirs))
	return nil
}

func (c *cli) runServe(cfg config.Config, env experiment.Environment, logger *zap.Logger) error {
	app, err := application.New(cfg, env, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
	return nil
}

func resolve(reg registry.Registry, names []string, with map[string]string) (experiment.Params, error) {
	updates, err := experiment.ParseUpdates(with)
	if err != nil {
		return experiment.Params{}, err
	}
	return reg.Resolve(names, updates)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
