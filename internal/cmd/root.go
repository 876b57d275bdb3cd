package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/observability"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/config"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/factory"
)

// Version information set by the main package
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// app holds the state shared by one command tree
type app struct {
	cfgFile string
	verbose bool

	// logSink receives server logs; nil means stderr
	logSink zapcore.WriteSyncer

	// cliLogger is built once flags are parsed
	cliLogger *zap.Logger

	// newFactory builds the transport factory; tests swap it
	newFactory func() *factory.DefaultTransportFactory
}

// NewRootCmd builds the maildispatch command tree
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{newFactory: factory.NewDefaultFactory})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "maildispatch",
		Short: "Send email through an ordered list of transports",
		Long: `maildispatch sends email through an ordered list of transports.

Each message passes a rate gate, is retried with exponential backoff on the
first transport and falls back to the next transport when retries run out.

Configuration is read from --config, ./maildispatch.yaml or ./config/maildispatch.yaml,
then overridden by MAILDISPATCH_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.cliLogger = observability.NewCLILogger(a.verbose)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./maildispatch.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	root.AddCommand(
		newSendCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree against os.Args
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig reads, decodes and validates configuration. bind maps flag
// names to config keys; only flags the user set override the file.
func (a *app) loadConfig(cmd *cobra.Command, bind map[string]string) (*config.Config, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd, bind); err != nil {
		return nil, err
	}
	if err := config.Read(v, a.cfgFile); err != nil {
		return nil, Exit(ExitConfigInvalid, err)
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return nil, Exit(ExitConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, Exit(ExitConfigInvalid, err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		a.logger().Debug("loaded config file", zap.String("file", used))
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bind map[string]string) error {
	for flag, key := range bind {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) logger() *zap.Logger {
	if a.cliLogger == nil {
		a.cliLogger = observability.NewCLILogger(a.verbose)
	}
	return a.cliLogger
}

func (a *app) serverLogSink() zapcore.WriteSyncer {
	if a.logSink != nil {
		return a.logSink
	}
	return zapcore.Lock(os.Stderr)
}

func writeString(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}
