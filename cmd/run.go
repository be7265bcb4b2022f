package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/observability"
	"github.com/xkilldash9x/conductor/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newRunCmd creates the `run` command, which performs one automation from a JSON file.
func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var inputPath, outputPath string
	var strategies []string
	var headful bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one automation and print the result as JSON",
		Long: `Run reads a request body from --input (or stdin with "-"). The file may hold either
the full request {"formData": {...}} or the formData object alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("strategies") {
				cfg.SetBrowserStrategies(strategies)
			}
			if headful {
				cfg.SetBrowserHeadless(false)
			}

			formData, err := readFormData(cmd.InOrStdin(), inputPath)
			if err != nil {
				return err
			}

			components, err := factory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			runCtx, cancel := context.WithTimeout(ctx, cfg.Automation().MaxDuration)
			defer cancel()

			result, report, err := components.Automation.RunFormData(runCtx, formData)
			if report != nil {
				logger.Info("Run finished", zap.String("run_id", report.RunID), zap.String("state", string(report.State)))
			}
			if err != nil {
				return fmt.Errorf("automation failed: %w", err)
			}

			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			if outputPath != "" {
				if err := os.WriteFile(outputPath, append(data, '\n'), 0o644); err != nil {
					return fmt.Errorf("failed to write result: %w", err)
				}
				logger.Info("Result written", zap.String("path", outputPath))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", `request JSON file, or "-" for stdin`)
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result to this file instead of stdout")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "browser strategies to try in order (local, remote-token, remote-header)")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window for local launches")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// readFormData loads the request file and unwraps the formData envelope when present.
func readFormData(stdin io.Reader, path string) (interface{}, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("input is not valid JSON: %w", err)
	}
	if obj, ok := body.(map[string]interface{}); ok {
		if inner, wrapped := obj["formData"]; wrapped {
			return inner, nil
		}
	}
	return body, nil
}
