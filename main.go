package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/config"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/gcloud"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/k8sutil"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/logging"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/prompt"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/runlog"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/upgrade"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func main() {
	os.Exit(_main(os.Args, os.Stdin, os.Stdout))
}

func _main(args []string, stdin io.Reader, stdout io.Writer) int {
	log := logging.New("main")
	// reconcile logs its own failure so it lands in the run log.
	logged := false
	app := newApp(stdout, func(c *cli.Context, cfg *config.Config) error {
		logged = true
		return reconcile(c.Context, cfg, stdin, stdout)
	})
	err := app.Run(args)
	if errors.Cause(err) == upgrade.ErrAborted {
		return 0
	}
	if err != nil {
		if !logged {
			log.WithError(err).Error("unable to start")
		}
		return 1
	}
	return 0
}

type action func(c *cli.Context, cfg *config.Config) error

func newApp(stdout io.Writer, run action) *cli.App {
	return &cli.App{
		Name:  "nodepool-upgrader",
		Usage: "upgrade GKE node pools to the control plane version",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Usage: "GCP project of the cluster"},
			&cli.StringFlag{Name: "region", Usage: "region of the cluster"},
			&cli.StringFlag{Name: "cluster", Usage: "name of the cluster"},
			&cli.BoolFlag{Name: "dry-run", Usage: "report planned changes without making them"},
			&cli.StringFlag{Name: "config", Usage: "optional TOML settings file"},
			&cli.StringFlag{Name: "log-dir", Usage: "directory the run log is written to", Value: config.DefaultLogDir},
			&cli.StringFlag{Name: "kubeconfig", Usage: "kubeconfig to use instead of the default loading rules"},
			&cli.BoolFlag{Name: "yes", Usage: "answer yes to every confirmation"},
			&cli.BoolFlag{Name: "debug", Usage: "log at debug level"},
		},
		Writer:          stdout,
		HideHelpCommand: true,
		Action: func(c *cli.Context) error {
			cfg, err := settings(c)
			if err != nil {
				return err
			}
			return run(c, cfg)
		},
	}
}

// settings loads the config file, if any, and applies the flags given on
// the command line over it.
func settings(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	strs := map[string]*string{
		"project":    &cfg.Project,
		"region":     &cfg.Region,
		"cluster":    &cfg.Cluster,
		"log-dir":    &cfg.LogDir,
		"kubeconfig": &cfg.Kubeconfig,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	bools := map[string]*bool{
		"dry-run": &cfg.DryRun,
		"yes":     &cfg.AssumeYes,
		"debug":   &cfg.Debug,
	}
	for name, dst := range bools {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid settings")
	}
	return cfg, nil
}

func reconcile(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) (err error) {
	if cfg.Debug {
		logging.Set(logging.Level("debug"))
		logging.Debuggable = true
	}
	log := logging.New("main")

	runLog := runlog.New(cfg.LogDir, cfg.Project, cfg.Region, cfg.Cluster)
	logging.Set(logging.Hook(runLog.Hook()))
	defer func() {
		if err != nil && err != upgrade.ErrAborted {
			log.WithError(err).Error("run failed")
		}
		logging.Set(logging.ResetHooks())
		if err := runLog.Close(); err != nil {
			log.WithError(err).Error("unable to write run log")
			return
		}
		fmt.Fprintf(stdout, "\nLog written to %s\n", runLog.Path())
	}()
	out := io.MultiWriter(stdout, runLog)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY RUN"
	}
	log.Infof("Started %s mode at %s", mode, time.Now().Format(time.RFC3339))

	cluster := gcloud.New(logging.New("gcloud"), cfg.GcloudPath, gcloud.Target{
		Project: cfg.Project,
		Region:  cfg.Region,
		Cluster: cfg.Cluster,
	}, cfg.DryRun)
	if err = cluster.Connect(ctx); err != nil {
		return errors.WithMessage(err, "connect to cluster")
	}

	kube, err := k8sutil.DefaultKubernetesClient(cfg.Kubeconfig)
	if err != nil {
		return errors.WithMessage(err, "kubernetes client")
	}
	scanner := k8sutil.NewScanner(logging.New("scan"), kube, cfg.FragileReplicas)
	defer scanner.Close()

	var confirm prompt.Confirmer = prompt.NewTerminal(stdin, stdout)
	if cfg.AssumeYes {
		confirm = prompt.Always(true)
	}

	runner := upgrade.New(logging.New("upgrade"), cluster, scanner, confirm, out, upgrade.Options{
		DryRun:          cfg.DryRun,
		FragileReplicas: cfg.FragileReplicas,
		Surge:           cfg.Surge,
	})
	result, err := runner.Run(ctx)
	if err == upgrade.ErrAborted {
		return err
	}
	if err != nil {
		return errors.WithMessage(err, "run error")
	}
	if n := upgrade.Failures(result.Outcomes); n > 0 {
		log.Warnf("%d node pool(s) failed to upgrade", n)
	}
	return nil
}
