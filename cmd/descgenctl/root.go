package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/descgen-core/internal/client"
)

var version = "dev"

var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	warn   = color.New(color.FgYellow)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
)

type options struct {
	url     string
	token   string
	timeout time.Duration
	noCache bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "descgenctl",
		Short:         "descgenctl manages descgen-core settings",
		Long:          brand.Sprint("descgenctl") + " talks to a running descgen-core service\n" + subtle.Sprint("Read settings, manage API keys, and open the options page"),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("descgenctl {{ .Version }}\n")

	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&opts.url, "url", getEnv("DESCGEN_URL", "http://localhost:8080"), "descgen-core base URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("DESCGEN_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "do not read or write the local settings cache")

	rootCmd.AddCommand(
		getCmd(opts),
		apiKeyCmd(opts),
		saveCmd(opts),
		rotateCmd(opts),
		resetCmd(opts),
		openOptionsCmd(opts),
		contextsCmd(opts),
		tokenCmd(),
	)

	return rootCmd
}

func (o *options) client() *client.Client {
	cfg := client.Config{
		BaseURL: o.url,
		Token:   o.token,
		Timeout: o.timeout,
	}
	if !o.noCache {
		cfg.CachePath = cachePath()
	}
	return client.New(cfg)
}

func cachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "descgen", "settings.json")
}

// maskKey hides all but the last four characters of an API key
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func fail(w io.Writer, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	bad.Fprintf(w, "  %v\n", err)
	return err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
