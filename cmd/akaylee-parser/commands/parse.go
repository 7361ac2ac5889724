/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: parse.go
Description: Parse command implementation for the Akaylee Parser. Loads the grammar, rule cache
and oracle, parses every input through the reparse coordinator and prints trees or JSON reports.
The rule cache and the final grammar are persisted on the way out.
*/

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kleascm/akaylee-parser/pkg/cache"
	"github.com/kleascm/akaylee-parser/pkg/core"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/kleascm/akaylee-parser/pkg/logging"
	"github.com/kleascm/akaylee-parser/pkg/monitoring"
	"github.com/kleascm/akaylee-parser/pkg/parser"
	"github.com/kleascm/akaylee-parser/pkg/reporting"
	"github.com/kleascm/akaylee-parser/pkg/source"
	"github.com/kleascm/akaylee-parser/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// documentOutput is the JSON form of one parsed document
type documentOutput struct {
	Name   string       `json:"name"`
	Code   string       `json:"code"`
	Tree   *parser.Node `json:"tree,omitempty"`
	Report *core.Report `json:"report"`
}

// RunParse parses the documents named by args
func RunParse(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.GetLogger()

	output, _ := cmd.Flags().GetString("output")
	if output != "tree" && output != "json" {
		return fmt.Errorf("unknown output format %q (want tree or json)", output)
	}

	store, err := loadStore(cfg.Grammar, log)
	if err != nil {
		return err
	}
	initial := store.Latest().Version()

	rules, err := cache.New(cfg.Cache.Capacity)
	if err != nil {
		return err
	}
	var cacheFile *cache.FileStore
	if cfg.Cache.File != "" {
		cacheFile = &cache.FileStore{Fs: appFs, Path: cfg.Cache.File}
		if err := loadCache(cacheFile, rules, logger); err != nil {
			return err
		}
	}

	var (
		resolver core.Resolver
		gateway  *inference.Gateway
	)
	orc, err := buildOracle(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create oracle: %w", err)
	}
	if orc != nil {
		gateway, err = inference.NewGateway(store, rules, orc, cfg.Gateway(), log.WithField("component", "inference"))
		if err != nil {
			return err
		}
		resolver = gateway
	}

	engine, err := core.NewEngine(store, resolver, cfg.Core(), log.WithField("component", "coordinator"))
	if err != nil {
		return err
	}
	engine.AddReporter(core.NewLoggerReporter(log))
	rep := &cliReporter{logger: logger}
	if cfg.ReportDir != "" {
		rep.writer = &utils.ReportWriter{Fs: appFs, Dir: cfg.ReportDir}
	}
	engine.AddReporter(rep)

	reader := source.NewReader(cfg.HTMLSelector)
	reader.Fs = appFs
	paths := args
	if len(paths) == 0 {
		paths = []string{source.Stdin}
	}
	inputs, err := reader.ReadAll(paths)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var profiler *monitoring.Profiler
	if cfg.Profile.Enabled() {
		profiler = monitoring.NewProfiler(cfg.Profile, appFs, log.WithField("component", "profiler"))
		if err := profiler.Start(); err != nil {
			return err
		}
	}

	var results []core.BatchResult
	if len(inputs) == 1 {
		root, report, err := engine.Parse(ctx, inputs[0].Data, initial)
		results = []core.BatchResult{{Name: inputs[0].Name, Root: root, Report: report, Err: err}}
	} else {
		results = engine.ParseAll(ctx, inputs, cfg.Workers)
	}

	if profiler != nil {
		if _, err := profiler.Stop(); err != nil {
			log.WithError(err).Warn("Failed to write profiles")
		}
	}

	failed := printResults(cmd, results, output)

	for _, v := range store.History() {
		if v.Version != initial {
			logger.LogGrammarVersion(uint64(v.Version), uint64(v.Parent), v.Note, logrus.Fields{"rules": v.Rules, "digest": v.Digest})
		}
	}
	if out, _ := cmd.Flags().GetString("grammar-out"); out != "" {
		if err := writeGrammar(appFs, out, store.Latest()); err != nil {
			return err
		}
		okColor.Fprintf(cmd.ErrOrStderr(), "Grammar v%d written to %s\n", store.Latest().Version(), out)
	}
	if cacheFile != nil {
		entries := rules.Export()
		if err := cacheFile.Save(entries); err != nil {
			return err
		}
		logger.LogCacheEvent("save", cacheFile.Path, len(entries), nil)
	}
	logStats(logger, engine, gateway)
	if cfg.DashboardDir != "" {
		if err := writeDashboard(cmd, cfg.DashboardDir, results, engine, gateway, log); err != nil {
			return err
		}
	}

	if failed > 0 {
		if len(results) == 1 {
			return results[0].Err
		}
		return fmt.Errorf("%d of %d document(s) failed", failed, len(results))
	}
	return nil
}

// printResults writes each result to stdout and returns the number of failures
func printResults(cmd *cobra.Command, results []core.BatchResult, output string) int {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
		if output == "json" {
			doc := documentOutput{Name: res.Name, Code: core.Classify(res.Err), Tree: res.Root, Report: res.Report}
			data, err := json.Marshal(doc)
			if err != nil {
				failColor.Fprintf(errOut, "%s: failed to encode result: %v\n", res.Name, err)
				continue
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		if len(results) > 1 {
			titleColor.Fprintf(out, "== %s\n", res.Name)
		}
		if res.Err != nil {
			failColor.Fprintf(errOut, "%s: %v\n", res.Name, res.Err)
			if res.Report != nil && res.Report.Failure != nil {
				dimColor.Fprintf(errOut, "  near %q\n", res.Report.Failure.Snippet)
			}
			continue
		}
		fmt.Fprintln(out, res.Root.String())
		if r := res.Report; r != nil {
			c := okColor
			if r.Confidence < 1 {
				c = warnColor
			}
			c.Fprintf(errOut, "%s: grammar v%d, confidence %.2f, %d attempt(s)\n", res.Name, r.FinalVersion, r.Confidence, r.Attempts)
		}
	}
	return failed
}

// cliReporter logs applied resolutions and optionally writes report files
type cliReporter struct {
	logger *logging.Logger
	writer *utils.ReportWriter
}

func (r *cliReporter) OnAttempt(rep *core.Report, a core.Attempt) {
	if a.Outcome != core.OutcomeResolved && a.Outcome != core.OutcomeAdvisory {
		return
	}
	r.logger.LogResolution(a.Fingerprint, a.Rule, a.Number, logrus.Fields{
		"parse_id": rep.ID.String(),
		"version":  a.Version,
		"outcome":  a.Outcome,
	})
}

func (r *cliReporter) OnReport(rep *core.Report) {
	if r.writer == nil {
		return
	}
	path, err := r.writer.Write("parse", uint64(rep.FinalVersion), rep.ID.String(), rep)
	if err != nil {
		r.logger.GetLogger().WithError(err).Warn("Failed to write parse report")
		return
	}
	r.logger.GetLogger().WithField("path", path).Debug("Parse report written")
}

func loadCache(fs *cache.FileStore, rules *cache.Cache, logger *logging.Logger) error {
	entries, err := fs.Load()
	if err != nil {
		return err
	}
	if err := rules.Import(entries); err != nil {
		return fmt.Errorf("failed to import rule cache: %w", err)
	}
	logger.LogCacheEvent("load", fs.Path, len(entries), nil)
	return nil
}

func writeGrammar(fs afero.Fs, path string, snap *grammar.Snapshot) error {
	data, err := grammar.EncodeDefinition(snap)
	if err != nil {
		return fmt.Errorf("failed to encode grammar: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write grammar: %w", err)
	}
	return nil
}

func writeDashboard(cmd *cobra.Command, dir string, results []core.BatchResult, engine *core.Engine, gateway *inference.Gateway, log logrus.FieldLogger) error {
	var gs *inference.Stats
	if gateway != nil {
		s := gateway.Stats()
		gs = &s
	}
	data := reporting.NewDashboardData("Akaylee Parser run", results, engine.Store(), engine.Stats(), gs)
	path, err := reporting.NewDashboardGenerator(appFs, dir, log).GenerateDashboard(data)
	if err != nil {
		return err
	}
	okColor.Fprintf(cmd.ErrOrStderr(), "Dashboard written to %s\n", path)
	return nil
}

func logStats(logger *logging.Logger, engine *core.Engine, gateway *inference.Gateway) {
	s := engine.Stats()
	fields := logrus.Fields{
		"parses":          s.Parses,
		"successes":       s.Successes,
		"failures":        s.Failures,
		"resolutions":     s.Resolutions,
		"advisories":      s.Advisories,
		"non_convergence": s.NonConvergence,
		"grammar_version": engine.Store().Latest().Version(),
	}
	if gateway != nil {
		g := gateway.Stats()
		fields["oracle_calls"] = g.OracleCalls
		fields["cache_hits"] = g.CacheHits
		fields["cache_misses"] = g.CacheMisses
		fields["shared"] = g.Shared
	}
	mem := monitoring.Summary()
	fields["heap_alloc"] = mem.HeapAlloc
	fields["gcs"] = mem.GCs
	logger.LogStats(fields)
}
