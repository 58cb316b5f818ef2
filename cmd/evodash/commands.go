package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/evodash/internal/config"
	"github.com/kalambet/evodash/internal/discovery"
	"github.com/kalambet/evodash/internal/orchestrator"
	"github.com/kalambet/evodash/internal/specstore"
	"github.com/kalambet/evodash/internal/storage"
)

// --- request ---

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Submit and inspect feature requests",
}

var requestSubmitCmd = &cobra.Command{
	Use:   "submit <description>",
	Short: "Submit a feature request and wait for the generator",
	Long: `Submit a feature request and wait for the generator.

Examples:
  evodash request submit "Add a todo list with checkboxes"
  evodash request submit --file ./idea.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		description := strings.Join(args, " ")
		if file != "" {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			description = string(data)
		}
		if strings.TrimSpace(description) == "" {
			return fmt.Errorf("a description or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Generating, this can take a few minutes...")
		resp, err := client.post(cmd.Context(), "/api/features/request", map[string]string{"description": description})
		if err != nil {
			return err
		}

		var result orchestrator.SubmitResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Processing.Success {
			printError("Request %s failed: %s", result.FeatureRequest.ID, result.Processing.Message)
			return fmt.Errorf("generation failed")
		}
		printSuccess("Request %s completed", result.FeatureRequest.ID)
		for _, f := range result.Processing.GeneratedFiles {
			fmt.Printf("  %s\n", f)
		}
		return nil
	},
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent feature requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if status != "" {
			q.Set("status", status)
		}
		resp, err := client.get(cmd.Context(), "/api/features/requests?"+q.Encode())
		if err != nil {
			return err
		}

		var requests []storage.FeatureRequest
		if err := decodeJSON(resp, &requests); err != nil {
			return err
		}

		if len(requests) == 0 {
			fmt.Println("No feature requests found.")
			return nil
		}
		for _, fr := range requests {
			fmt.Println(formatRequestLine(fr))
		}
		return nil
	},
}

func formatRequestLine(fr storage.FeatureRequest) string {
	desc := strings.Join(strings.Fields(fr.Description), " ")
	if r := []rune(desc); len(r) > 70 {
		desc = string(r[:70]) + "..."
	}
	id := fr.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s  %s  %-10s  %s",
		colorize(colorCyan, id),
		fr.Timestamp.Format("2006-01-02 15:04"),
		colorize(statusColor(string(fr.Status)), string(fr.Status)),
		desc,
	)
}

var requestShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single feature request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/features/requests/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var fr storage.FeatureRequest
		if err := decodeJSON(resp, &fr); err != nil {
			return err
		}
		return printJSON(os.Stdout, fr)
	},
}

func init() {
	requestSubmitCmd.Flags().String("file", "", "read the description from a file (- for stdin)")
	requestListCmd.Flags().Int("limit", 20, "maximum number of requests to list")
	requestListCmd.Flags().String("status", "", "filter by status (pending, processing, completed, failed)")
	requestCmd.AddCommand(requestSubmitCmd)
	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestShowCmd)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// --- features ---

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Inspect generated dashboard features",
}

var featuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated features",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/features")
		if err != nil {
			return err
		}
		var features []discovery.Feature
		if err := decodeJSON(resp, &features); err != nil {
			return err
		}
		printFeatures(features)
		return nil
	},
}

var featuresRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rescan the components directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/api/features/refresh", nil)
		if err != nil {
			return err
		}
		var features []discovery.Feature
		if err := decodeJSON(resp, &features); err != nil {
			return err
		}
		printSuccess("Found %d feature(s)", len(features))
		printFeatures(features)
		return nil
	},
}

func printFeatures(features []discovery.Feature) {
	if len(features) == 0 {
		fmt.Println("No features found.")
		return
	}
	for _, f := range features {
		fmt.Printf("%s  %-8s  %s\n",
			colorize(colorBold, f.Name),
			colorize(statusColor(string(f.Status)), string(f.Status)),
			f.ComponentPath,
		)
		if f.Description != "" {
			fmt.Printf("    %s\n", f.Description)
		}
	}
}

func init() {
	featuresCmd.AddCommand(featuresListCmd)
	featuresCmd.AddCommand(featuresRefreshCmd)
}

// --- spec ---

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Inspect the spec document",
}

var specShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current spec document",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/spec")
		if err != nil {
			return err
		}
		var doc specstore.Document
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		switch format {
		case "json":
			return printJSON(os.Stdout, doc)
		case "yaml", "":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(doc)
		default:
			return fmt.Errorf("unknown format %q (want yaml or json)", format)
		}
	},
}

func init() {
	specShowCmd.Flags().String("format", "yaml", "output format: yaml or json")
	specCmd.AddCommand(specShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: fmt.Sprintf(`Set a configuration value in the config file.

Valid keys: %s`, strings.Join(config.ValidKeys(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
