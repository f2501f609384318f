package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/SaddleSum/internal/service"
)

func newImportCmd(a *app) *cobra.Command {
	var aliases string
	c := &cobra.Command{
		Use:   "import <database> [NS:]terms.gmt...",
		Short: "Import GMT files and aliases into a stored term database",
		Long: `Adds the terms of each GMT file to <database> in Postgres, creating it if
needed. Terms whose ID already exists are skipped. Running servers drop their
copy of the database when they receive the import event.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && aliases == "" {
				return fmt.Errorf("nothing to import: give GMT files or --aliases")
			}
			ctx := cmd.Context()
			logger := a.logger(cmd.ErrOrStderr())

			b, err := openBackends(ctx, a.cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			defaults, err := a.cfg.EnrichOptions()
			if err != nil {
				return err
			}
			svc, err := service.New(b.store, b.events, nil, nil, defaults, 1, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			database := args[0]
			for _, arg := range args[1:] {
				ns, path := splitTermFile(arg)
				fh, err := os.Open(path)
				if err != nil {
					return err
				}
				res, err := svc.ImportGMT(ctx, database, ns, fh)
				fh.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "%s: %d terms added to %s/%s (%d terms, %d entities)\n",
					path, res.Added, res.Database, res.Namespace, res.NumTerms, res.NumEntities)
			}
			if aliases != "" {
				fh, err := os.Open(aliases)
				if err != nil {
					return err
				}
				defer fh.Close()
				res, err := svc.ImportAliases(ctx, database, fh)
				if err != nil {
					return fmt.Errorf("%s: %w", aliases, err)
				}
				fmt.Fprintf(out, "%s: %d aliases added to %s\n", aliases, res.Added, res.Database)
			}
			return nil
		},
	}
	c.Flags().StringVar(&aliases, "aliases", "", `file of "symbol alias..." lines`)
	return c
}
