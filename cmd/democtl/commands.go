// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianDemo/pkg/logging"
	"github.com/AleutianAI/AleutianDemo/pkg/ux"
	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultServer = "http://localhost:12210"

// app holds state shared by every command, set up in PersistentPreRunE.
type app struct {
	out    io.Writer
	errOut io.Writer

	server      string
	timeout     time.Duration
	personality string
	logLevel    string
	logDir      string

	logger  *logging.Logger
	printer *ux.Printer
	client  *Client
}

// newRootCmd builds the command tree writing to out and errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "democtl",
		Short:         "Operate the demo backend: corpora, search, chat, evals, and settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.server, "server", "", "orchestrator base URL (env DEMOCTL_SERVER)")
	flags.DurationVar(&a.timeout, "timeout", 60*time.Second, "timeout for non-streaming requests")
	flags.StringVar(&a.personality, "personality", "", "output style: full, standard, minimal, machine")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringVar(&a.logDir, "log-dir", "", "also write JSON logs to this directory")

	root.AddCommand(
		a.healthCmd(),
		a.corporaCmd(),
		a.searchCmd(),
		a.reindexCmd(),
		a.chatCmd(),
		a.evalCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) setup() error {
	if a.personality != "" {
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(a.personality))
	} else {
		ux.InitPersonality()
	}
	a.printer = &ux.Printer{Out: a.out, Err: a.errOut, Level: ux.GetPersonalityLevel()}

	a.logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(a.logLevel),
		LogDir:  a.logDir,
		Service: "democtl",
		Writer:  a.errOut,
	})

	server := a.server
	if server == "" {
		server = os.Getenv("DEMOCTL_SERVER")
	}
	if server == "" {
		server = defaultServer
	}
	a.client = NewClient(server, a.timeout, a.logger)
	a.logger.Debug("Client configured", "server", server)
	return nil
}

// =============================================================================
// health, corpora
// =============================================================================

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show store, graph, and provider health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			pairs := []string{"status", fmt.Sprint(body["status"])}
			if services, ok := body["services"].(map[string]any); ok {
				pairs = append(pairs, "store", fmt.Sprint(services["store"]), "graph", fmt.Sprint(services["graph"]))
				if providers, ok := services["llm"].(map[string]any); ok {
					for _, k := range sortedKeys(providers) {
						pairs = append(pairs, "llm."+k, fmt.Sprint(providers[k]))
					}
				}
			}
			if msg, ok := body["error"]; ok {
				pairs = append(pairs, "error", fmt.Sprint(msg))
			}
			a.printer.KeyValues(pairs...)
			if ok, _ := body["ok"].(bool); !ok {
				return errors.New("server is unhealthy")
			}
			return nil
		},
	}
}

func (a *app) corporaCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "corpora",
		Aliases: []string{"ls"},
		Short:   "List corpora",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			corpora, err := a.client.Corpora(cmd.Context())
			if err != nil {
				return err
			}
			if len(corpora) == 0 {
				a.printer.Warning("no corpora indexed")
				return nil
			}
			rows := make([][]string, 0, len(corpora))
			for _, c := range corpora {
				indexed := "never"
				if c.LastIndexed != nil {
					indexed = c.LastIndexed.Format(time.RFC3339)
				}
				rows = append(rows, []string{c.CorpusID, c.Name, c.Path, indexed})
			}
			a.printer.Title("Corpora")
			a.printer.Table([]string{"ID", "NAME", "PATH", "LAST INDEXED"}, rows)
			return nil
		},
	}
}

// =============================================================================
// search, reindex
// =============================================================================

func (a *app) searchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <corpus> <query...>",
		Short: "Run a sparse search over one corpus",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Search(cmd.Context(), datatypes.SearchRequest{
				CorpusID: args[0],
				Query:    strings.Join(args[1:], " "),
				TopK:     topK,
			})
			if err != nil {
				return err
			}
			if len(resp.Matches) == 0 {
				a.printer.Warning(fmt.Sprintf("no matches for %q", resp.Query))
				return nil
			}
			rows := make([][]string, 0, len(resp.Matches))
			for i, m := range resp.Matches {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					strconv.FormatFloat(m.Score, 'f', 3, 64),
					fmt.Sprintf("%s:%d-%d", m.FilePath, m.StartLine, m.EndLine),
					snippet(m.Content, 60),
				})
			}
			a.printer.Title(fmt.Sprintf("%d matches in %.2f ms", len(resp.Matches), resp.LatencyMs))
			a.printer.Table([]string{"#", "SCORE", "LOCATION", "CONTENT"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum matches (server default when 0)")
	return cmd
}

func (a *app) reindexCmd() *cobra.Command {
	var snapshotPath string
	cmd := &cobra.Command{
		Use:   "reindex <corpus> --snapshot <file.json>",
		Short: "Replace a corpus with a JSON snapshot of chunks, entities, and edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(snapshotPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("snapshot %s is not valid JSON", snapshotPath)
			}
			result, err := a.client.Reindex(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			a.printer.Success(fmt.Sprintf("reindexed %s", result.CorpusID))
			a.printer.KeyValues(
				"chunks", strconv.Itoa(result.Chunks),
				"entities", strconv.Itoa(result.Entities),
				"edges", strconv.Itoa(result.Edges),
				"last_indexed", result.LastIndexed.Format(time.RFC3339),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "snapshot file")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

// =============================================================================
// chat
// =============================================================================

func (a *app) chatCmd() *cobra.Command {
	var (
		corpora []string
		model   string
		stream  bool
	)
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Ask a question answered from the indexed corpora",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := datatypes.ChatRequest{
				Message:       strings.Join(args, " "),
				Sources:       datatypes.ChatSources{CorpusIDs: corpora},
				ModelOverride: model,
			}
			if !stream {
				resp, err := a.client.Chat(cmd.Context(), req)
				if err != nil {
					return err
				}
				a.printAnswer(resp.Message.Content, resp.Sources, resp.Error)
				return nil
			}

			events, err := a.client.ChatStream(cmd.Context(), req, nil)
			if err != nil {
				return err
			}
			if err := a.checkChain(events); err != nil {
				return err
			}
			var answer, errMsg string
			var sources []datatypes.SearchMatch
			for _, e := range events {
				switch e.Type {
				case ux.StreamEventText:
					answer += e.Content
				case ux.StreamEventDone:
					errMsg = e.Error
					if len(e.Sources) > 0 {
						if err := json.Unmarshal(e.Sources, &sources); err != nil {
							return fmt.Errorf("decode sources: %w", err)
						}
					}
				case ux.StreamEventError:
					return errors.New(e.Error)
				}
			}
			a.printAnswer(answer, sources, errMsg)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&corpora, "corpus", nil, "corpus to search (repeatable)")
	cmd.Flags().StringVar(&model, "model", "", "provider override, e.g. anthropic:claude-3-5-sonnet-20240620")
	cmd.Flags().BoolVar(&stream, "stream", false, "use the SSE endpoint and verify its hash chain")
	return cmd
}

func (a *app) printAnswer(answer string, sources []datatypes.SearchMatch, errMsg string) {
	if errMsg != "" {
		a.printer.Warning("provider: " + errMsg)
	}
	a.printer.Box("Answer", answer)
	if len(sources) == 0 {
		return
	}
	rows := make([][]string, 0, len(sources))
	for i, s := range sources {
		rows = append(rows, []string{fmt.Sprintf("[%d]", i+1), s.Source, s.FilePath,
			strconv.FormatFloat(s.Score, 'f', 3, 64)})
	}
	a.printer.Table([]string{"REF", "CORPUS", "FILE", "SCORE"}, rows)
}

func (a *app) checkChain(events []ux.StreamEvent) error {
	result := ux.VerifyChain(events)
	if !result.Valid {
		a.printer.Error(result.FormatForDisplay())
		return errors.New("stream failed integrity verification")
	}
	a.logger.Debug("Stream verified", "events", result.ChainLength, "final_hash", result.FinalHash)
	return nil
}

// =============================================================================
// eval
// =============================================================================

func (a *app) evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run, list, and compare retrieval evaluations",
	}
	cmd.AddCommand(a.evalRunCmd(), a.evalListCmd(), a.evalCompareCmd())
	return cmd
}

func (a *app) evalRunCmd() *cobra.Command {
	var (
		req    datatypes.RunRequest
		seed   uint64
		bias   float64
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a new eval run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			if cmd.Flags().Changed("bias") {
				req.AccuracyBias = &bias
			}

			if !stream {
				run, err := a.client.EvalRun(cmd.Context(), req)
				if err != nil {
					return err
				}
				a.printRun(run)
				return nil
			}

			events, err := a.client.EvalRunStream(cmd.Context(), req, func(e ux.StreamEvent) error {
				if e.Type == ux.StreamEventProgress && a.printer.Level != ux.PersonalityMachine {
					fmt.Fprintf(a.errOut, "\r%s %d/%d", ux.IconArrow, e.Completed, e.Total)
				}
				return nil
			})
			if a.printer.Level != ux.PersonalityMachine {
				fmt.Fprintln(a.errOut)
			}
			if err != nil {
				return err
			}
			if err := a.checkChain(events); err != nil {
				return err
			}
			if len(events) == 0 {
				return errors.New("stream ended without events")
			}
			last := events[len(events)-1]
			if last.Type == ux.StreamEventError {
				return errors.New(last.Error)
			}
			var run datatypes.EvalRun
			if err := json.Unmarshal(last.Run, &run); err != nil {
				return fmt.Errorf("decode run: %w", err)
			}
			a.printRun(run)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.CorpusID, "corpus", "", "corpus to evaluate (default: the active corpus)")
	f.IntVar(&req.TopK, "top-k", 0, "retrieval depth")
	f.IntVar(&req.SampleSize, "sample-size", 0, "number of dataset entries")
	f.Uint64Var(&seed, "seed", 0, "random seed")
	f.Float64Var(&bias, "bias", 0, "accuracy bias between 0 and 1")
	f.BoolVar(&stream, "stream", false, "show progress and verify the event chain")
	return cmd
}

func (a *app) printRun(run datatypes.EvalRun) {
	a.printer.Success("run " + run.RunID)
	m := run.Metrics
	a.printer.KeyValues(
		"corpus", run.CorpusID,
		"entries", strconv.Itoa(run.Total),
		"top_k", strconv.Itoa(run.TopK),
		"seed", strconv.FormatUint(run.Seed, 10),
		"top1_accuracy", pct(m.Top1Accuracy),
		"topk_accuracy", pct(m.TopKAccuracy),
		"mrr", strconv.FormatFloat(m.MRR, 'f', 3, 64),
		"ndcg@10", strconv.FormatFloat(m.NDCGAt10, 'f', 3, 64),
		"latency_p95_ms", strconv.FormatFloat(m.LatencyP95, 'f', 1, 64),
	)
}

func (a *app) evalListCmd() *cobra.Command {
	var (
		corpus string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.client.EvalRuns(cmd.Context(), corpus, limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{r.RunID, r.CorpusID, strconv.Itoa(r.Total),
					pct(r.Top1Accuracy), strconv.FormatFloat(r.MRR, 'f', 3, 64), r.CompletedAt.Format(time.RFC3339)})
			}
			a.printer.Table([]string{"RUN", "CORPUS", "ENTRIES", "TOP1", "MRR", "COMPLETED"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpus, "corpus", "", "only runs of this corpus")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum runs (server default when 0)")
	return cmd
}

func (a *app) evalCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <baseline-run> <current-run>",
		Short: "Compare two runs and flag regressions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmp, err := a.client.Compare(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cmp.Deltas))
			for _, d := range cmp.Deltas {
				flag := ""
				if d.Regression {
					flag = string(ux.IconWarning)
				}
				rows = append(rows, []string{d.Metric,
					strconv.FormatFloat(d.Baseline, 'f', 3, 64),
					strconv.FormatFloat(d.Current, 'f', 3, 64),
					strconv.FormatFloat(d.DeltaPoints, 'f', 1, 64), flag})
			}
			a.printer.Title(fmt.Sprintf("%s %s %s", cmp.BaselineRunID, ux.IconArrow, cmp.CurrentRunID))
			a.printer.Table([]string{"METRIC", "BASELINE", "CURRENT", "DELTA PP", ""}, rows)
			a.printer.Box("Analysis", cmp.Analysis)
			if cmp.Regressions > 0 {
				a.printer.Warning(fmt.Sprintf("%d regression(s)", cmp.Regressions))
			}
			return nil
		},
	}
}

// =============================================================================
// config
// =============================================================================

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect scope settings",
	}
	var scope string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the settings of a scope as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := a.client.Config(cmd.Context(), scope)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(tree)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = a.out.Write(data)
			return err
		},
	}
	show.Flags().StringVar(&scope, "scope", "", "scope (default: global)")
	cmd.AddCommand(show)
	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func pct(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
