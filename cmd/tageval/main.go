// Command tageval scores a multi-label audio tagger against reference
// annotations and reports micro/macro AUPRC and per-category curves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/banshee-data/tagging-eval/internal/config"
	"github.com/banshee-data/tagging-eval/internal/db"
	"github.com/banshee-data/tagging-eval/internal/evaluation"
	"github.com/banshee-data/tagging-eval/internal/monitoring"
	"github.com/banshee-data/tagging-eval/internal/report"
	"github.com/banshee-data/tagging-eval/internal/storage/sqlite"
	"github.com/banshee-data/tagging-eval/internal/taxonomy"
	"github.com/banshee-data/tagging-eval/internal/version"
)

type options struct {
	predictions string
	annotations string
	taxonomy    string
	mode        string
	configPath  string
	dbPath      string
	curvesPath  string
	summaryPath string
	quiet       bool
	version     bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("tageval", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.predictions, "predictions", "", "Predictions CSV (required)")
	fs.StringVar(&o.annotations, "annotations", "", "Annotations CSV (required)")
	fs.StringVar(&o.taxonomy, "taxonomy", "", "Taxonomy YAML (required)")
	fs.StringVar(&o.mode, "mode", "", "Evaluation mode: fine or coarse (default from config)")
	fs.StringVar(&o.configPath, "config", "", "Evaluation config JSON; TAGEVAL_* env vars override it")
	fs.StringVar(&o.dbPath, "db", "", "SQLite database to record the run in")
	fs.StringVar(&o.curvesPath, "curves", "", "Write all curves to this CSV file")
	fs.StringVar(&o.summaryPath, "summary", "-", "Write the JSON summary here (- for stdout)")
	fs.BoolVar(&o.quiet, "quiet", false, "Suppress diagnostic logging")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.version {
		return o, nil
	}

	if o.predictions == "" || o.annotations == "" || o.taxonomy == "" {
		fs.Usage()
		return nil, errors.New("-predictions, -annotations and -taxonomy are required")
	}
	return o, nil
}

func loadConfig(path string) (*config.EvalConfig, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.LoadEvalConfig(path)
}

func writeFile(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if o.quiet {
		monitoring.SetLogger(nil)
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	var mode taxonomy.Mode
	if o.mode != "" {
		if mode, err = taxonomy.ParseMode(o.mode); err != nil {
			return err
		}
	}

	paths := evaluation.Paths{Taxonomy: o.taxonomy, Predictions: o.predictions, Annotations: o.annotations}
	res, err := evaluation.RunFiles(ctx, paths, mode, cfg)
	if err != nil {
		return err
	}

	if o.curvesPath != "" {
		curves := append(res.Curves(), res.MicroCurve)
		if err := writeFile(o.curvesPath, stdout, func(w io.Writer) error {
			return report.WriteCurvesCSV(w, curves)
		}); err != nil {
			return fmt.Errorf("curves: %w", err)
		}
	}
	if o.summaryPath != "" {
		if err := writeFile(o.summaryPath, stdout, func(w io.Writer) error {
			return report.WriteSummaryJSON(w, res)
		}); err != nil {
			return fmt.Errorf("summary: %w", err)
		}
	}

	if o.dbPath != "" {
		database, err := db.NewDB(o.dbPath)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer database.Close()

		evalRun, err := sqlite.NewEvaluationRun(res, paths, cfg.Resolved())
		if err != nil {
			return err
		}
		if err := sqlite.NewEvaluationStore(database.DB).Insert(evalRun); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		monitoring.Logf("recorded evaluation run %s in %s", evalRun.RunID, o.dbPath)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("tageval: %v", err)
	}
}
