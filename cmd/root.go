package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/splitget/internal/config"
	s3source "github.com/tanq16/splitget/internal/downloaders/s3"
	"github.com/tanq16/splitget/internal/output"
	"github.com/tanq16/splitget/internal/scheduler"
	"github.com/tanq16/splitget/internal/utils"
)

var (
	proc          int
	verbose       bool
	outputName    string
	dir           string
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	bearerToken   string
	limit         string
	configPath    string
	fileLog       bool
	s3Profile     string
	s3Region      string
	s3Endpoint    string

	runConfig config.Config
)

var SplitgetVersion = "dev"

var rootCmd = &cobra.Command{
	Use:           "splitget [URL]",
	Short:         "Splitget downloads a file over several parallel range requests and resumes interrupted runs",
	Version:       SplitgetVersion,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.InitLogger(verbose, fileLog); err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		runConfig = cfg
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := buildOptions(args[0], runConfig)
		if err := scheduler.Run(ctx, opts); err != nil {
			stop()
			fmt.Println()
			if ctx.Err() != nil {
				output.PrintWarning("Download interrupted; run the same command again to resume")
			} else {
				output.PrintError(fmt.Sprintf("Download failed: %v", err))
			}
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

// resolveConfig layers the config file, the environment and explicitly set
// flags, in that order.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("proc") {
		cfg.Proc = proc
	}
	if flags.Changed("dir") {
		cfg.Dir = dir
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.KATimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		cfg.Proxy.URL = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.Proxy.Username = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.Proxy.Password = proxyPassword
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		cfg.Headers[k] = v
	}
	if flags.Changed("bearer-token") {
		cfg.BearerToken = bearerToken
	}
	if flags.Lookup("limit") != nil && flags.Changed("limit") {
		parsed, err := utils.ParseBytes(limit)
		if err != nil {
			return cfg, fmt.Errorf("invalid --limit: %w", err)
		}
		cfg.Limit = parsed
	}
	if flags.Changed("s3-profile") {
		cfg.S3.Profile = s3Profile
	}
	if flags.Changed("s3-region") {
		cfg.S3.Region = s3Region
	}
	if flags.Changed("s3-endpoint") {
		cfg.S3.Endpoint = s3Endpoint
	}

	if cfg.UserAgent == "randomize" {
		cfg.UserAgent = utils.GetRandomUserAgent()
	}
	// credentials embedded in the proxy URL are used unless given separately
	parsedProxy, err := u.Parse(cfg.Proxy.URL)
	if cfg.Proxy.URL != "" && err == nil && parsedProxy.User != nil {
		if cfg.Proxy.Username == "" {
			cfg.Proxy.Username = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				cfg.Proxy.Password = password
			}
		}
		parsedProxy.User = nil
		cfg.Proxy.URL = parsedProxy.String()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	log.Debug().Str("op", "cmd/config").Int("proc", cfg.Proc).Str("dir", cfg.Dir).Int64("limit", cfg.Limit).Msg("resolved configuration")
	return cfg, nil
}

func buildOptions(rawURL string, cfg config.Config) scheduler.Options {
	return scheduler.Options{
		URL:        rawURL,
		OutputName: outputName,
		Dir:        cfg.Dir,
		Segments:   cfg.Proc,
		HTTP:       cfg.HTTPClientConfig(),
		S3: s3source.Options{
			Profile:         cfg.S3.Profile,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		},
		Limit: cfg.Limit,
		// debug logs go to the terminal, so the live display stays off
		Quiet: verbose && !fileLog,
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&proc, "proc", "p", utils.DefaultSegments, "Number of segments downloaded in parallel")
	pf.StringVarP(&dir, "dir", "d", ".", "Directory for partial files and the output")
	pf.StringVarP(&outputName, "output", "o", "", "Output file (inferred from the URL if not provided); a directory part is joined to --dir")
	pf.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Time to wait for response headers (eg. 5s, 10m)")
	pf.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	pf.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	pf.StringVar(&proxyURL, "proxy", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	pf.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	pf.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	pf.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	pf.StringVar(&bearerToken, "bearer-token", "", "Bearer token sent with every request")
	pf.StringVar(&configPath, "config", "", "Path to a YAML config file (default $XDG_CONFIG_HOME/splitget/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&fileLog, "log", false, "Write logs to "+utils.LogFile)
	pf.StringVar(&s3Profile, "s3-profile", "", "AWS profile for s3:// URLs")
	pf.StringVar(&s3Region, "s3-region", "", "AWS region for s3:// URLs")
	pf.StringVar(&s3Endpoint, "s3-endpoint", "", "Custom endpoint for S3-compatible stores")

	rootCmd.Flags().StringVar(&limit, "limit", "", "Bandwidth cap across all segments (eg. 500KB, 5MB)")

	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newCleanCmd())
}
