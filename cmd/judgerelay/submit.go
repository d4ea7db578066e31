package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/judgerelay/internal/appconfig"
	"pkt.systems/judgerelay/internal/initiator"
	"pkt.systems/judgerelay/schema"
)

type submitFlags struct {
	cfgPath   string
	serverURL string
	source    string
	problem   string
	language  string
	file      string
	interval  time.Duration
	timeout   time.Duration
	jsonOut   bool
}

func newSubmitCmd() *cobra.Command {
	var flags submitFlags
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a solution and follow its grading",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			serverURL := cfg.Client.ServerURL
			if cmd.Flags().Changed("server") {
				serverURL = flags.serverURL
			}
			code, err := readCode(flags.file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			language, err := schema.NormalizeLanguage(flags.language)
			if err != nil {
				return err
			}
			sub := schema.Submission{
				Source:          schema.Source(strings.TrimSpace(flags.source)),
				SourceProblemID: strings.TrimSpace(flags.problem),
				Code:            code,
				Language:        language,
			}
			client, err := initiator.New(serverURL, nil)
			if err != nil {
				return err
			}
			return runSubmit(cmd.Context(), client, sub, flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.serverURL, "server", "", "judgerelay server URL (overrides client.server_url)")
	cmd.Flags().StringVarP(&flags.source, "source", "s", "BOJ", "judge source key")
	cmd.Flags().StringVarP(&flags.problem, "problem", "p", "", "problem id on the judge")
	cmd.Flags().StringVarP(&flags.language, "language", "l", string(schema.LanguagePython), "language (Python, Java, C++, Node.js)")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "-", "source file, - for stdin")
	cmd.Flags().DurationVar(&flags.interval, "interval", initiator.DefaultInterval, "progress polling interval")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", initiator.DefaultTimeout, "overall timeout")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "print the final report as JSON")
	_ = cmd.MarkFlagRequired("problem")
	return cmd
}

func runSubmit(ctx context.Context, client *initiator.Client, sub schema.Submission, flags submitFlags, out io.Writer) error {
	result, err := client.Run(ctx, sub, initiator.RunOptions{
		Interval: flags.interval,
		Timeout:  flags.timeout,
		OnSubmitted: func(resp schema.SubmitResponse) {
			if !flags.jsonOut {
				_, _ = fmt.Fprintf(out, "submitted %s %s in tab %s\n", sub.Source, sub.SourceProblemID, resp.TabID)
			}
		},
		OnProgress: func(report schema.ProgressReport) {
			if !flags.jsonOut && !report.IsComplete {
				_, _ = fmt.Fprintf(out, "[%3d%%] %s\n", report.PercentComplete, report.StatusLabel)
			}
		},
	})
	if err != nil {
		var envErr *schema.EnvelopeError
		if errors.As(err, &envErr) && flags.jsonOut {
			_ = json.NewEncoder(out).Encode(schema.Envelope{Code: envErr.Code, Message: envErr.Message})
		}
		return err
	}
	if flags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(schema.NewEnvelope(result.Report))
	}
	_, err = fmt.Fprintln(out, formatReport(result.Report))
	return err
}

func formatReport(report schema.ProgressReport) string {
	var b strings.Builder
	outcome := string(report.Outcome)
	if outcome == "" {
		outcome = "done"
	}
	fmt.Fprintf(&b, "%s: %s", outcome, report.StatusLabel)
	if report.MemoryUsed != "" {
		fmt.Fprintf(&b, " memory %s", report.MemoryUsed)
	}
	if report.TimeUsed != "" {
		fmt.Fprintf(&b, " time %s", report.TimeUsed)
	}
	return b.String()
}

func readCode(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("source code is empty")
	}
	return string(data), nil
}
