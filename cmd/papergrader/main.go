package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/papergrader/internal/analytics"
	"github.com/pavelanni/papergrader/internal/handler"
	appI18n "github.com/pavelanni/papergrader/internal/i18n"
	"github.com/pavelanni/papergrader/internal/llm"
	"github.com/pavelanni/papergrader/internal/llm/prompts"
	"github.com/pavelanni/papergrader/internal/model"
	"github.com/pavelanni/papergrader/internal/pipeline"
	"github.com/pavelanni/papergrader/internal/report"
	"github.com/pavelanni/papergrader/internal/review"
	"github.com/pavelanni/papergrader/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "papergrader",
		Short: "Grade scanned exams with an LLM and analyze class results",
	}
	root.AddCommand(gradeCmd(), analyticsCmd(), serveCmd())
	return root
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a folder of scanned exam texts",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.StringP("input-dir", "i", "examples/input", "Folder containing OCR text files")
	f.String("glob", "*.txt", "Glob pattern for input files")
	f.StringP("output-dir", "o", "output", "Output directory for reports")
	f.String("rubric", "examples/config/rubric.txt", "Rubric text file")
	f.String("answer-key", "examples/config/answer_key.json", "Answer key JSON file (two-stage mode)")
	f.StringP("mode", "m", "single-shot", "Grading mode (single-shot, two-stage)")
	f.Float64("confidence-threshold", review.DefaultThreshold, "Flag judgments below this confidence for review (0-100)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("variant", string(prompts.VariantStandard), "Grading strictness variant (strict, standard, lenient)")
	f.String("db", "", "SQLite database path for persisting results (empty = disabled)")
	f.Bool("xlsx", false, "Also write grades_summary.xlsx")
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	addLogFlags(cmd)
	return cmd
}

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Compute class analytics from graded reports",
		RunE:  runAnalytics,
	}
	f := cmd.Flags()
	f.StringP("output-dir", "o", "output", "Directory containing *_report.json files")
	f.String("db", "", "Read reports from this SQLite database instead of the output directory")
	f.StringP("lang", "l", "en", "Insight language (en, ru)")
	addLogFlags(cmd)
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results as a JSON API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "papergrader.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Insight language (en, ru)")
	addLogFlags(cmd)
	return cmd
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PAPERGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("papergrader")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/papergrader")
	v.AddConfigPath("/etc/papergrader")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	lang := v.GetString("lang")
	loc, err := appI18n.Init(lang)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	threshold := v.GetFloat64("confidence-threshold")
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("confidence-threshold must be in [0,100], got %g", threshold)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid grading variant, using standard", "variant", variant)
		variant = string(prompts.VariantStandard)
	}

	rubric, err := os.ReadFile(v.GetString("rubric"))
	if err != nil {
		return fmt.Errorf("read rubric: %w", err)
	}

	client := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	mode := v.GetString("mode")
	var oracle llm.Oracle
	switch mode {
	case "single-shot":
		oracle = llm.NewSingleShot(client, string(rubric), prompts.Variant(variant))
	case "two-stage":
		key, err := report.LoadAnswerKey(v.GetString("answer-key"))
		if err != nil {
			return err
		}
		oracle = llm.NewTwoStage(client, string(rubric), key, prompts.Variant(variant))
	default:
		return fmt.Errorf("unknown mode %q (want single-shot or two-stage)", mode)
	}

	var st *store.Store
	if dbPath := v.GetString("db"); dbPath != "" {
		st, err = store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()
		info := store.RunInfo{
			Model:               v.GetString("llm-model"),
			Mode:                mode,
			ConfidenceThreshold: threshold,
		}
		if err := st.SetRunInfo(info); err != nil {
			return fmt.Errorf("record run info: %w", err)
		}
	}

	cfg := model.RunConfig{
		InputDir:            v.GetString("input-dir"),
		Glob:                v.GetString("glob"),
		OutputDir:           v.GetString("output-dir"),
		RubricPath:          v.GetString("rubric"),
		AnswerKeyPath:       v.GetString("answer-key"),
		Mode:                mode,
		ConfidenceThreshold: threshold,
		WriteXLSX:           v.GetBool("xlsx"),
	}

	stats, err := pipeline.New(oracle, st, cfg).Run(ctx)
	if err != nil {
		return err
	}

	locCtx := appI18n.WithLocalizer(ctx, loc)
	if stats.Flagged > 0 {
		fmt.Println(appI18n.Tp(locCtx, "ReviewItemsFlagged", stats.Flagged))
	} else {
		fmt.Println(appI18n.T(locCtx, "ReviewQueueEmpty"))
	}
	slog.Info("grading run complete",
		"graded", stats.Graded, "failed", stats.Failed, "flagged", stats.Flagged)
	if stats.Failed > 0 && stats.Graded == 0 {
		return fmt.Errorf("all %d exams failed to grade", stats.Failed)
	}
	return nil
}

func runAnalytics(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	loc, err := appI18n.Init(lang)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), loc)

	var reports []model.ExamReport
	var skipped int
	if dbPath := v.GetString("db"); dbPath != "" {
		st, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()
		if reports, err = st.ListExamReports(); err != nil {
			return fmt.Errorf("load reports from database: %w", err)
		}
	} else {
		if reports, skipped, err = report.LoadReports(v.GetString("output-dir")); err != nil {
			return err
		}
	}
	if skipped > 0 {
		slog.Warn("skipped malformed graded items", "count", skipped)
	}

	result := analytics.Compute(ctx, reports)
	if result.ClassSummary.TotalStudents == 0 {
		slog.Warn("no graded reports found", "dir", v.GetString("output-dir"))
		fmt.Println(appI18n.T(ctx, "NoReportsFound"))
	} else {
		printAnalytics(result)
	}

	outPath := filepath.Join(v.GetString("output-dir"), "analytics_report.json")
	if err := report.WriteAnalytics(outPath, result); err != nil {
		return err
	}
	slog.Info("analytics saved", "path", outPath)
	return nil
}

func printAnalytics(r model.AnalyticsReport) {
	fmt.Println("Class Summary")
	fmt.Printf("  Students:       %d\n", r.ClassSummary.TotalStudents)
	fmt.Printf("  Class Average:  %g%%\n", r.ClassSummary.ClassAveragePct)
	fmt.Printf("  Highest Score:  %g%%\n", r.ClassSummary.HighestScore)
	fmt.Printf("  Lowest Score:   %g%%\n", r.ClassSummary.LowestScore)

	fmt.Println("\nPer-Question Breakdown")
	fmt.Printf("  %-10s %-12s %-10s %-10s %8s %8s %8s\n",
		"Question", "Avg Score", "Pass Rate", "Difficulty", "Correct", "Partial", "Wrong")
	for _, qid := range sortedKeys(r.QuestionStats) {
		qs := r.QuestionStats[qid]
		fmt.Printf("  %-10s %5g/%-6g %8g%% %-10s %8d %8d %8d\n",
			qid, qs.AvgScore, qs.MaxPoints, qs.PassRate, qs.Difficulty,
			qs.VerdictBreakdown.Correct, qs.VerdictBreakdown.Partial, qs.VerdictBreakdown.Incorrect)
	}

	fmt.Println("\nInsights")
	for i, insight := range r.Insights {
		fmt.Printf("  %d. %s\n", i+1, insight)
	}
}

func sortedKeys(m map[string]model.QuestionStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	loc, err := appI18n.Init(lang)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	st, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	h := handler.New(st)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(loc))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server", "addr", addr, "db", v.GetString("db"), "lang", lang)
	return http.ListenAndServe(addr, r)
}
