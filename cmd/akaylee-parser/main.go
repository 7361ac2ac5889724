/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Command-line interface for the Akaylee Parser. Parses documents against a
versioned grammar, repairing the grammar through an inference oracle when a parse fails,
and offers grammar, token and rule cache inspection commands.
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kleascm/akaylee-parser/cmd/akaylee-parser/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "akaylee-parser",
		Short: "Akaylee Parser - adaptive packrat parser with grammar repair",
		Long: `Akaylee Parser parses documents against a versioned grammar. When a parse fails,
the failure is summarised and sent to an inference oracle, whose proposed rule is validated,
published as a new grammar version and used to reparse the document.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Configuration file path")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json, custom)")
	rootCmd.PersistentFlags().String("log-dir", "", "Log output directory (console only when empty)")
	rootCmd.PersistentFlags().Int("log-max-files", 10, "Maximum number of log files to keep")
	rootCmd.PersistentFlags().Bool("log-compress", false, "Compress older log files")
	rootCmd.PersistentFlags().String("grammar", "", "Grammar file (YAML)")

	bind(rootCmd, map[string]string{
		"config":             "config",
		"logging.level":      "log-level",
		"logging.format":     "log-format",
		"logging.output_dir": "log-dir",
		"logging.max_files":  "log-max-files",
		"logging.compress":   "log-compress",
		"grammar":            "grammar",
	}, true)

	// parse
	parseCmd := &cobra.Command{
		Use:   "parse [file|dir|-]...",
		Short: "Parse documents, repairing the grammar on failure",
		Long: `Parse one or more documents. Directories contribute their files and "-" reads stdin;
with no arguments stdin is parsed. Several documents are parsed concurrently against one
shared grammar, so a repair made for one document serves the others.`,
		RunE: commands.RunParse,
	}
	parseCmd.Flags().String("oracle", "none", "Inference oracle (none, scripted, openai)")
	parseCmd.Flags().String("oracle-script", "", "YAML script for the scripted oracle")
	parseCmd.Flags().String("oracle-model", "", "Model name for the openai oracle")
	parseCmd.Flags().String("oracle-url", "", "Base URL for the openai oracle")
	parseCmd.Flags().Duration("oracle-timeout", 30*time.Second, "Timeout for each oracle call")
	parseCmd.Flags().Int("oracle-calls", 2, "Oracle calls per resolution, refinements included")
	parseCmd.Flags().Float64("min-confidence", 0, "Discard proposals below this oracle confidence")
	parseCmd.Flags().Int("max-attempts", 5, "Maximum grammar resolutions per document")
	parseCmd.Flags().String("proactive-threshold", "", "Consult the oracle for parses below this confidence (off when empty)")
	parseCmd.Flags().String("html-selector", "", "Treat input as HTML and parse the text of matching elements")
	parseCmd.Flags().String("cache-file", "", "Persist the rule cache in this file")
	parseCmd.Flags().Int("cache-capacity", 1024, "Rule cache capacity")
	parseCmd.Flags().Int("workers", 0, "Concurrent parses (0 = number of CPUs)")
	parseCmd.Flags().String("report-dir", "", "Write a JSON report per document to this directory")
	parseCmd.Flags().String("dashboard", "", "Write an HTML dashboard of the run to this directory")
	parseCmd.Flags().String("output", "tree", "Output format (tree, json)")
	parseCmd.Flags().String("grammar-out", "", "Write the final grammar to this file")
	parseCmd.Flags().Bool("profile-cpu", false, "Write a CPU profile of the run")
	parseCmd.Flags().Bool("profile-memory", false, "Write heap and goroutine profiles after the run")
	parseCmd.Flags().String("profile-dir", "profiles", "Directory for profile output")

	bind(parseCmd, map[string]string{
		"oracle.kind":                   "oracle",
		"oracle.script":                 "oracle-script",
		"oracle.openai.model":           "oracle-model",
		"oracle.openai.base_url":        "oracle-url",
		"oracle.timeout":                "oracle-timeout",
		"oracle.calls":                  "oracle-calls",
		"oracle.min_confidence":         "min-confidence",
		"max_resolution_attempts":       "max-attempts",
		"proactive_inference_threshold": "proactive-threshold",
		"html_selector":                 "html-selector",
		"cache.file":                    "cache-file",
		"cache.capacity":                "cache-capacity",
		"workers":                       "workers",
		"report_dir":                    "report-dir",
		"dashboard_dir":                 "dashboard",
		"profile.cpu":                   "profile-cpu",
		"profile.memory":                "profile-memory",
		"profile.goroutine":             "profile-memory",
		"profile.output_dir":            "profile-dir",
	}, false)

	// grammar
	grammarCmd := &cobra.Command{
		Use:   "grammar",
		Short: "Inspect grammar files",
	}
	grammarCmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a grammar and print its canonical form and digest",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunGrammarCheck,
	})

	// tokens
	tokensCmd := &cobra.Command{
		Use:   "tokens [file|-]",
		Short: "Print the tokens of a document under the grammar",
		Args:  cobra.MaximumNArgs(1),
		RunE:  commands.RunTokens,
	}
	tokensCmd.Flags().String("html-selector", "", "Treat input as HTML and tokenize the text of matching elements")

	// cache
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear a persisted rule cache",
	}
	cacheCmd.PersistentFlags().String("cache-file", "", "Rule cache file")
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List cached rule proposals",
		RunE:  commands.RunCacheShow,
	}, &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached rule proposal",
		RunE:  commands.RunCacheClear,
	})

	rootCmd.AddCommand(parseCmd, grammarCmd, tokensCmd, cacheCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := commands.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// bind binds flags to configuration keys
func bind(cmd *cobra.Command, keys map[string]string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for key, flag := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
