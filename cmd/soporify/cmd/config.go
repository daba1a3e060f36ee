package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dgellow/soporify/cmd/soporify/internal/output"
	"github.com/dgellow/soporify/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check config files",
	}
	cmd.AddCommand(newConfigInitCmd(opts), newConfigValidateCmd(opts))
	return cmd
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists; use --force to overwrite", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			if err := generateDefaultConfig(path); err != nil {
				return err
			}
			opts.printer.Success(fmt.Sprintf("Generated default config at: %s", path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a config file's structure without resolving environment variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(opts.printer, args[0])
		},
	}
}

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.CurrentVersion,
		"spotify": map[string]any{
			"clientId":      config.DefaultClientID,
			"redirectUri":   config.DefaultRedirectURI,
			"scopes":        config.DefaultScopes,
			"tokenValidity": config.DefaultTokenValidity.String(),
		},
		"server": map[string]any{
			"sessionTtl":     "24h",
			"allowedOrigins": []string{"http://localhost:5173"},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(p *output.Printer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	if p.JSON() {
		if err := p.PrintJSON(result); err != nil {
			return err
		}
	} else {
		printValidation(p.Out, path, result)
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func printValidation(w io.Writer, path string, result *config.ValidationResult) {
	fmt.Fprintf(w, "Validating: %s\n", path)

	printIssues := func(title string, issues []config.ValidationError) {
		if len(issues) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s (%d):\n", title, len(issues))
		for _, issue := range issues {
			if issue.Path != "" {
				fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
			} else {
				fmt.Fprintf(w, "  - %s\n", issue.Message)
			}
		}
	}
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Fprintln(w)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(w, "Result: "+output.SuccessStyle.Render("PASS"))
	case len(result.Errors) == 0:
		fmt.Fprintln(w, "Result: "+output.WarningStyle.Render("FAIL (warnings present)"))
	default:
		fmt.Fprintln(w, "Result: "+output.ErrorStyle.Render("FAIL"))
	}
}
