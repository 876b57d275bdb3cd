package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cecil-the-coder/mail-dispatch-kit/internal/output"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/metrics"
	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/types"
)

type sendOptions struct {
	to       string
	subject  string
	body     string
	bodyFile string
	format   string
	timeout  time.Duration
}

func newSendCmd(a *app) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one email",
		Long: `Send one email through the configured transports and print a report.

The command exits with code 2 when no transport accepted the message.`,
		Example: `  maildispatch send --to user@example.com --subject Hi --body "Hello there"
  echo "Hello" | maildispatch send --to user@example.com --subject Hi --body-file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSend(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.to, "to", "", "recipient address (required)")
	cmd.Flags().StringVar(&opts.subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&opts.body, "body", "", "plain-text body")
	cmd.Flags().StringVar(&opts.bodyFile, "body-file", "", "read the body from a file, - for stdin")
	cmd.Flags().StringVarP(&opts.format, "output", "o", "table", "output format: table, json")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long, rate gate and backoff included (0 = no limit)")
	cmd.Flags().Int("max-attempts", 0, "override dispatch.max_attempts")
	cmd.Flags().Duration("rate-limit-interval", 0, "override dispatch.rate_limit_interval")
	_ = cmd.MarkFlagRequired("to")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")

	return cmd
}

func (a *app) runSend(cmd *cobra.Command, opts *sendOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	body, err := readBody(cmd.InOrStdin(), opts)
	if err != nil {
		return err
	}

	msg := types.NewMessage(strings.TrimSpace(opts.to), opts.subject, body)
	if err := msg.Validate(); err != nil {
		return err
	}

	cfg, err := a.loadConfig(cmd, map[string]string{
		"max-attempts":        "dispatch.max_attempts",
		"rate-limit-interval": "dispatch.rate_limit_interval",
	})
	if err != nil {
		return err
	}

	logger := a.logger()
	collector := metrics.NewDefaultMetricsCollector()
	defer collector.Close()
	if a.verbose {
		collector.RegisterHook(metrics.NewLogHook(logger.Named("metrics"), nil))
	}

	f := a.newFactory()
	f.SetLogger(logger)
	f.SetMetricsCollector(collector)

	d, err := f.BuildDispatcher(cfg)
	if err != nil {
		return Exit(ExitConfigInvalid, err)
	}

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	logger.Debug("sending",
		zap.String("message_id", msg.ID),
		zap.Strings("transports", d.Transports()))

	result := d.Dispatch(ctx, msg)

	rendered, err := output.NewFormatter(format).FormatResult(result)
	if err != nil {
		return err
	}
	if err := writeString(cmd.OutOrStdout(), rendered); err != nil {
		return err
	}
	if format == output.FormatJSON {
		_ = writeString(cmd.OutOrStdout(), "\n")
	}

	if !result.Delivered {
		if result.Err != nil {
			return Exit(ExitNotDelivered, fmt.Errorf("%w: %v", ErrNotDelivered, result.Err))
		}
		return Exit(ExitNotDelivered, ErrNotDelivered)
	}
	return nil
}

func readBody(stdin io.Reader, opts *sendOptions) (string, error) {
	switch opts.bodyFile {
	case "":
		return opts.body, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read body from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(opts.bodyFile)
		if err != nil {
			return "", fmt.Errorf("read body file: %w", err)
		}
		return string(data), nil
	}
}
