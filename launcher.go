package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/distantorigin/butter-launcher/internal/catalog"
	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/config"
	"github.com/distantorigin/butter-launcher/internal/console"
	"github.com/distantorigin/butter-launcher/internal/download"
	"github.com/distantorigin/butter-launcher/internal/install"
	"github.com/distantorigin/butter-launcher/internal/launch"
	"github.com/distantorigin/butter-launcher/internal/logging"
	"github.com/distantorigin/butter-launcher/internal/paths"
	"github.com/distantorigin/butter-launcher/internal/progress"
	"github.com/distantorigin/butter-launcher/internal/prompt"
	"github.com/distantorigin/butter-launcher/internal/remote"
	"github.com/distantorigin/butter-launcher/internal/version"
)

var (
	configPath     string
	baseDirFlag    string
	channelFlag    string
	logLevel       string
	logFile        string
	nonInteractive bool
	quietFlag      bool
	jsonFlag       bool

	rootCmd = &cobra.Command{
		Use:           "butter-launcher",
		Short:         "Install, update and launch the game",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Launcher,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .json or .toml)")
	rootCmd.PersistentFlags().StringVar(&baseDirFlag, "base-dir", "", "launcher data directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&channelFlag, "channel", "", "game channel: release or pre-release (default: last used)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (default from config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file path, or console")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt, pick defaults")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "only print errors")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "print events and results as JSON lines")

	rootCmd.AddCommand(versionsCmd, installCmd, launchCmd, statusCmd, migrateCmd, onlinePatchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the collaborators shared by every command
type app struct {
	cfg      config.Config
	baseDir  string
	out      *console.Printer
	prompt   *prompt.Prompter
	http     *http.Client
	resolver *catalog.Resolver
	dl       *download.Downloader
	orch     *install.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if baseDirFlag != "" {
		cfg.BaseDir = baseDirFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	if err := logging.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	timeout, _ := cfg.Timeout()
	httpClient := &http.Client{Timeout: timeout}
	// downloads of multi-gigabyte patches must not hit the request timeout
	dlClient := &http.Client{}

	dl := download.New(dlClient)

	a := &app{
		cfg:      cfg,
		baseDir:  baseDir,
		out:      console.New(os.Stdout, quietFlag, jsonFlag),
		prompt:   prompt.Stdio(nonInteractive || jsonFlag),
		http:     httpClient,
		resolver: catalog.NewResolver(cfg.Catalog(paths.CacheDir(baseDir)), remote.NewClient(httpClient)),
		dl:       dl,
		orch: install.NewDefault(dl, install.Config{
			ToolPath:   cfg.PatchTool,
			ToolsDir:   filepath.Join(baseDir, "tools"),
			ToolURL:    cfg.PatchToolURL,
			JREURL:     cfg.JREURL,
			StrictExit: cfg.StrictExit,
		}),
	}

	if cfg.CatalogURL == "" {
		log.Warn("no catalog_url configured, only installed builds are known")
	}
	log.Debugf("base directory %s", baseDir)
	return a, nil
}

// channel picks the channel from the flag, the remembered selection or a menu
func (a *app) channel() (channel.Channel, error) {
	if channelFlag != "" {
		return channel.Parse(channelFlag)
	}
	saved, err := channel.Load(a.baseDir)
	if err == nil {
		return saved, nil
	}
	return a.prompt.ChannelMenu(channel.Release), nil
}

// subscribe feeds progress to the console through a bounded channel so slow
// terminals never stall downloads. stop drains what is buffered.
func (a *app) subscribe() (sink progress.Sink, stop func()) {
	ch := progress.NewChanSink(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch.Events() {
			a.out.Emit(e)
		}
	}()

	return ch, func() {
		ch.Close()
		<-done
		if n := ch.Dropped(); n > 0 {
			log.Debugf("dropped %d progress events", n)
		}
	}
}

func (a *app) launcher() *launch.Launcher {
	l := launch.New(a.orch)
	l.SetAttempts(a.cfg.LaunchAttempts)
	return l
}

func newAppCmd(run func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return run(cmd.Context(), a, args)
	}
}
