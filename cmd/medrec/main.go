// Command medrec is a CLI client for the clinical records service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/medrec/internal/app"
	"github.com/and161185/medrec/internal/config"
	"github.com/and161185/medrec/internal/errs"
	"github.com/and161185/medrec/internal/logging"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// skipApp marks commands that run without config or session.
const skipApp = "skip-app"

// cli carries global flags and the per-invocation client.
type cli struct {
	apiURL   string
	logLevel string

	app    *app.App
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fail(err)
	}
}

// execute runs one command line and releases the client afterwards.
func execute(args []string, stdout, stderr io.Writer) error {
	c := &cli{}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	c.close()
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "medrec",
		Short:             "Clinical records client: patients, diagnoses, images and model inference",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.apiURL, "api", "", "API base URL (overrides MEDREC_API_URL)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides MEDREC_LOG_LEVEL)")

	root.AddCommand(
		c.versionCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.statusCmd(),
		c.patientsCmd(),
		c.diagnosesCmd(),
		c.imagesCmd(),
		c.computeCmd("classify", "Classify a diagnostic image"),
		c.computeCmd("segment", "Segment a diagnostic image"),
	)
	return root
}

// setup loads config and builds the client for commands that need it.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipApp] != "" {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.APIURL = c.apiURL
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.log, err = logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	c.app, err = app.New(cfg, c.log)
	if err != nil {
		return err
	}
	c.ctx, c.cancel = context.WithTimeout(cmd.Context(), cfg.Timeout)
	return nil
}

func (c *cli) close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.app != nil {
		if err := c.app.Close(); err != nil {
			c.log.Warn("close client", zap.Error(err))
		}
	}
	if c.log != nil {
		_ = c.log.Sync()
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipApp: "1"},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "medrec %s (%s)\n", version, buildDate)
		},
	}
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func fail(err error) {
	var he *errs.HTTPError
	if errors.As(err, &he) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", he.Status, errs.Message(err))
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
