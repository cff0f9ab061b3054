// Package main is the entry point for the relay CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/flowmesh/relay/internal/config"
	"github.com/flowmesh/relay/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "A programmable event-streaming proxy core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), reloadCmd(), stopCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("relay %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the relay supervisor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			asService, _ := cmd.Flags().GetBool("service")

			params := app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				LogLevel:   slog.LevelInfo,
			}

			if !asService {
				if err := writePidFile(); err != nil {
					return fmt.Errorf("writing pid file: %w", err)
				}
				defer removePidFile()
				return app.Run(params)
			}

			svc, err := newService(params)
			if err != nil {
				return fmt.Errorf("building service: %w", err)
			}
			return svc.Run()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().Bool("service", false, "Run under the OS service manager instead of the foreground")
	return cmd
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Send SIGHUP to the running relay process, reloading its configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			return signalRunning(syscall.SIGHUP)
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to the running relay process, draining it gracefully",
		RunE: func(_ *cobra.Command, _ []string) error {
			return signalRunning(syscall.SIGTERM)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (version %s, %d workers)\n", cfg.Version, cfg.Workers)
			return nil
		},
	})
	return cmd
}

// relayService adapts app.Run to kardianos/service's Program interface, so
// `relay start --service` can be installed and supervised as a system
// service rather than run in the foreground.
type relayService struct {
	params  app.RunParams
	errCh   chan error
}

func newService(params app.RunParams) (service.Service, error) {
	cfg := &service.Config{
		Name:        "relay",
		DisplayName: "Relay",
		Description: "Programmable event-streaming proxy core",
	}
	prog := &relayService{params: params, errCh: make(chan error, 1)}
	return service.New(prog, cfg)
}

func (p *relayService) Start(_ service.Service) error {
	go func() { p.errCh <- app.Run(p.params) }()
	return nil
}

func (p *relayService) Stop(_ service.Service) error {
	return nil
}

func pidFilePath() string {
	return filepath.Join(app.DefaultDataDir(), "relay.pid")
}

func writePidFile() error {
	path := pidFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePidFile() {
	_ = os.Remove(pidFilePath())
}

func signalRunning(sig syscall.Signal) error {
	raw, err := os.ReadFile(pidFilePath())
	if err != nil {
		return fmt.Errorf("reading pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("parsing pid file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	return proc.Signal(sig)
}
