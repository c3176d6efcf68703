package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/vdl/internal/config"
	"github.com/tanq16/vdl/internal/utils"
)

var (
	configPath    string
	debug         bool
	threads       int
	downloadDir   string
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	limitRate     string
	forceStream   bool
	headers       []string

	cfg config.Config
)

var VdlVersion = "dev"

var rootCmd = &cobra.Command{
	Use:           "vdl",
	Short:         "vdl is a resumable multi-connection download manager",
	Version:       VdlVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		explicit := configPath != ""
		if !explicit {
			configPath = config.DefaultPath()
		}
		loaded, err := config.Load(configPath, explicit)
		if err != nil {
			return err
		}
		cfg = loaded
		if err := applyFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		utils.InitLogger(cfg.Log.Debug, utils.LogFileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		return nil
	},
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Log.Debug = debug
	}
	if flags.Changed("connections") {
		cfg.Threads = threads
	}
	if flags.Changed("dir") {
		cfg.DownloadDir = downloadDir
	}
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.HTTP.KATimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		cfg.HTTP.UserAgent = userAgent
	}
	if cfg.HTTP.UserAgent == "randomize" {
		cfg.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	if flags.Changed("proxy") {
		cfg.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	// credentials embedded in the proxy URL are sent separately
	if parsed, err := u.Parse(cfg.HTTP.Proxy); err == nil && cfg.HTTP.Proxy != "" && parsed.User != nil {
		if cfg.HTTP.ProxyUsername == "" {
			cfg.HTTP.ProxyUsername = parsed.User.Username()
			if password, set := parsed.User.Password(); set {
				cfg.HTTP.ProxyPassword = password
			}
		}
		parsed.User = nil
		cfg.HTTP.Proxy = parsed.String()
	}
	if flags.Changed("limit-rate") {
		n, err := config.ParseBytes(limitRate)
		if err != nil {
			return fmt.Errorf("invalid --limit-rate: %w", err)
		}
		cfg.LimitRate = n
	}
	if flags.Changed("force-stream") {
		cfg.ForceStream = forceStream
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to the YAML config file (default ~/.vdl/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")
	pf.IntVarP(&threads, "connections", "c", 4, "Number of connections per download")
	pf.StringVarP(&downloadDir, "dir", "d", ".", "Directory finished downloads are moved to")
	pf.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Response header timeout (eg. 5s, 10m)")
	pf.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	pf.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	pf.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	pf.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	pf.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	pf.StringVar(&limitRate, "limit-rate", "", "Overall bandwidth cap (eg. 500KiB, 10MB)")
	pf.BoolVar(&forceStream, "force-stream", false, "Always download over a single stream")
	pf.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Cookie: a=b'); can be specified multiple times")

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newPauseCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newSaveCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}
