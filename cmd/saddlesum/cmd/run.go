package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/report"
	"github.com/MikeSquared-Agency/SaddleSum/internal/service"
	"github.com/MikeSquared-Agency/SaddleSum/internal/termdb"
	"github.com/MikeSquared-Agency/SaddleSum/internal/weights"
)

type runFlags struct {
	minTermSize     int
	evalueCutoff    float64
	effectiveDBSize float64
	statistic       string
	transform       string
	discretize      bool
	rankCutoff      int
	weightCutoff    float64
	useAllWeights   bool
	term            string
	output          string
	format          string
	warnings        bool
	unknownIDs      bool
	aliases         string
	dbName          string
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}
	c := &cobra.Command{
		Use:   "run [flags] <weights> <[NS:]terms.gmt>...",
		Short: "Run an enrichment query against local GMT files",
		Long: `Reads "symbol weight" lines from <weights> ("-" for stdin) and scores every
term of the GMT files. Each file is loaded into namespace NS; without a prefix
the file name is used. All files share one entity space.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd, a, f, args)
		},
	}
	fl := c.Flags()
	fl.IntVarP(&f.minTermSize, "min-term-size", "m", enrich.DefaultMinTermSize, "minimum number of weighted entities per term")
	fl.Float64VarP(&f.evalueCutoff, "evalue", "e", enrich.DefaultEvalueCutoff, "report terms with E-value at or below this cutoff")
	fl.Float64VarP(&f.effectiveDBSize, "effective-db-size", "n", -1, "number of tested terms used for E-values (default: counted)")
	fl.StringVarP(&f.statistic, "stat", "s", "", "statistic: wsum or hgem")
	fl.StringVarP(&f.transform, "transform", "t", "", "weight transform: flip or abs")
	fl.BoolVarP(&f.discretize, "discretize", "d", false, "set positive weights to 1 and the rest to 0")
	fl.IntVarP(&f.rankCutoff, "rank-cutoff", "r", 0, "keep only the top K weights")
	fl.Float64VarP(&f.weightCutoff, "weight-cutoff", "w", 0, "keep only weights at or above this value")
	fl.BoolVarP(&f.useAllWeights, "use-all-weights", "a", false, "include weights of entities no term annotates")
	fl.StringVarP(&f.term, "term", "T", "", "report a single term with its entities")
	fl.StringVarP(&f.output, "output", "O", "", "write the report to a file")
	fl.StringVarP(&f.format, "format", "F", "txt", "output format: txt, tab or json")
	fl.BoolVarP(&f.warnings, "warnings", "W", false, "print nomenclature warnings")
	fl.BoolVarP(&f.unknownIDs, "unknown-ids", "U", false, "print unknown identifiers")
	fl.StringVar(&f.aliases, "aliases", "", `file of "symbol alias..." lines`)
	fl.StringVar(&f.dbName, "db-name", "GMT", "database name shown in reports")
	return c
}

// request turns the flags that were set into an overlay on the configured
// defaults.
func (f *runFlags) request(cmd *cobra.Command) *service.EnrichRequest {
	changed := cmd.Flags().Changed
	req := &service.EnrichRequest{
		Statistic:  f.statistic,
		Transform:  f.transform,
		RankCutoff: f.rankCutoff,
		Discretize: f.discretize,
	}
	if changed("min-term-size") {
		req.MinTermSize = &f.minTermSize
	}
	if changed("evalue") {
		req.EvalueCutoff = &f.evalueCutoff
	}
	if changed("effective-db-size") {
		req.EffectiveDBSize = &f.effectiveDBSize
	}
	if changed("weight-cutoff") {
		req.WeightCutoff = &f.weightCutoff
	}
	if changed("use-all-weights") {
		req.UseAllWeights = &f.useAllWeights
	}
	return req
}

// splitTermFile parses "NS:path". Without a namespace the file's base name
// is used.
func splitTermFile(arg string) (namespace, path string) {
	if i := strings.IndexByte(arg, ':'); i > 0 {
		return arg[:i], arg[i+1:]
	}
	base := filepath.Base(arg)
	return strings.TrimSuffix(base, filepath.Ext(base)), arg
}

func loadTermFiles(db *termdb.Database, args []string) error {
	for _, arg := range args {
		ns, path := splitTermFile(arg)
		fh, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = db.LoadGMT(fh, ns)
		fh.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func readWeights(path string, stdin io.Reader) ([]weights.Entry, error) {
	if path == "-" {
		return weights.ReadEntries(stdin)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	entries, err := weights.ReadEntries(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func runEnrich(cmd *cobra.Command, a *app, f *runFlags, args []string) error {
	logger := a.logger(cmd.ErrOrStderr())

	format, err := report.ParseFormat(f.format)
	if err != nil {
		return err
	}
	defaults, err := a.cfg.EnrichOptions()
	if err != nil {
		return err
	}
	opts, err := f.request(cmd).Options(defaults)
	if err != nil {
		return err
	}

	db := termdb.New(f.dbName)
	if err := loadTermFiles(db, args[1:]); err != nil {
		return err
	}
	if f.aliases != "" {
		fh, err := os.Open(f.aliases)
		if err != nil {
			return err
		}
		_, err = db.LoadAliases(fh)
		fh.Close()
		if err != nil {
			return err
		}
	}
	entries, err := readWeights(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	logger.Debug("inputs loaded", "terms", db.NumTerms(), "entities", db.NumEntities(), "weights", len(entries))

	sess, err := enrich.NewSession(opts, logger)
	if err != nil {
		return err
	}
	if err := sess.LoadWeights(entries, db, db.Mappings()); err != nil {
		return err
	}
	if _, err := sess.ProcessWeights(); err != nil {
		return err
	}

	var res *enrich.Result
	if f.term != "" {
		i, ok := db.TermIndex(f.term)
		if !ok {
			return apperr.NotFoundf("could not retrieve term with ID %s", f.term)
		}
		if res, err = sess.ComputeOne(db.Mappings(), db, i); err != nil {
			return err
		}
	} else if res, err = sess.ComputeAll(db.Mappings(), db); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.output != "" {
		fh, err := os.Create(f.output)
		if err != nil {
			return err
		}
		defer fh.Close()
		out = fh
	}
	if f.term != "" {
		return report.WriteTerm(out, format, f.dbName, res)
	}
	return report.WriteResults(out, format, f.dbName, res, report.Options{
		Warnings:   f.warnings,
		UnknownIDs: f.unknownIDs,
	})
}
