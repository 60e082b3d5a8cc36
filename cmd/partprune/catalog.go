package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arkilian/partprune/internal/app"
	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/manifest"
	"github.com/arkilian/partprune/pkg/types"
)

func newCatalogCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the partition catalog",
	}
	cmd.AddCommand(
		newCatalogImportCmd(flags),
		newCatalogExportCmd(flags),
		newCatalogListCmd(flags),
		newCatalogRegisterCmd(flags),
		newCatalogAttachCmd(flags),
	)
	return cmd
}

func newCatalogImportCmd(flags *globalFlags) *cobra.Command {
	var (
		replace     bool
		concurrency int
		prefix      string
	)
	cmd := &cobra.Command{
		Use:   "import [key]...",
		Short: "Load catalog documents from object storage",
		Long: "Load catalog documents from object storage. With --prefix every .json and .json" +
			manifest.CompressedSuffix + " object under the prefix is loaded after the named keys.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && prefix == "" {
				return apperrors.NewValidationError(apperrors.CodeInvalidRequest, "import needs at least one key or --prefix")
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, commandLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			store, err := app.OpenStorage(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			keys := args
			if prefix != "" {
				listed, err := manifest.ListDocuments(ctx, store, prefix)
				if err != nil {
					return err
				}
				if len(listed) == 0 && len(args) == 0 {
					return apperrors.NewStorageError(apperrors.CodeObjectNotFound, "no documents under "+prefix, nil)
				}
				keys = append(keys, listed...)
			}

			result, err := manifest.ImportDocument(ctx, a.Catalog(), store, keys, concurrency, replace)
			a.Invalidate()
			if err != nil {
				return err
			}
			if len(result.Created) > 0 {
				if err := a.Catalog().RunAnalyze(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, name := range result.Created {
				fmt.Fprintf(out, "created %s\n", name)
			}
			for _, name := range result.Skipped {
				fmt.Fprintf(out, "skipped %s (exists)\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Drop and recreate relations that already exist")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum parallel downloads")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Also import every document stored under this prefix")
	return cmd
}

func newCatalogExportCmd(flags *globalFlags) *cobra.Command {
	var opts manifest.ExportOptions
	cmd := &cobra.Command{
		Use:   "export <key>",
		Short: "Write the catalog to object storage",
		Long: "Write the catalog to object storage. Keys ending in " + manifest.CompressedSuffix + " are snappy-compressed.\n" +
			"--if-match overwrites only the document with the given etag; --create-only never overwrites.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, commandLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			store, err := app.OpenStorage(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			etag, err := manifest.ExportDocument(ctx, a.Catalog(), store, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s (etag %s)\n", args[0], etag)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.IfMatch, "if-match", "", "Overwrite only if the stored document has this etag")
	cmd.Flags().BoolVar(&opts.CreateOnly, "create-only", false, "Fail if a document already exists at the key")
	cmd.MarkFlagsMutuallyExclusive("if-match", "create-only")
	return cmd
}

func newCatalogListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List partitioned relations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, commandLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			schemes, err := a.Catalog().ListRelations(commandContext(cmd))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTRATEGY\tKEY\tPARTITIONS")
			for _, s := range schemes {
				names := make([]string, len(s.Children))
				for i, c := range s.Children {
					names[i] = c.Name
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\n",
					s.Relation, s.Name, s.Strategy, s.KeyColumn, s.KeyType, strings.Join(names, ","))
			}
			return tw.Flush()
		},
	}
}

func newCatalogRegisterCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "register <id> <name>",
		Short: "Register an unpartitioned table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRelationID(args[0])
			if err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, commandLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Catalog().RegisterTable(commandContext(cmd), id, args[1]); err != nil {
				return err
			}
			a.Invalidate()
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (relation %d)\n", args[1], id)
			return nil
		},
	}
}

func newCatalogAttachCmd(flags *globalFlags) *cobra.Command {
	var lower, upper string
	cmd := &cobra.Command{
		Use:   "attach <relation> <child-id> <child-name>",
		Short: "Append a partition to a partitioned relation",
		Long:  "Append a partition to a partitioned relation. Range partitions need --min and --max.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			childID, err := parseRelationID(args[1])
			if err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, commandLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			scheme, err := lookupScheme(cmd, a, args[0])
			if err != nil {
				return err
			}
			var bound *types.RangeBound
			if scheme.Strategy == types.StrategyRange {
				if lower == "" || upper == "" {
					return apperrors.NewValidationError(apperrors.CodeInvalidBounds, "range partitions need --min and --max")
				}
				bound = &types.RangeBound{}
				if bound.Min, err = decodeBound(scheme.KeyType, "min", lower); err != nil {
					return err
				}
				if bound.Max, err = decodeBound(scheme.KeyType, "max", upper); err != nil {
					return err
				}
			}

			child := types.ChildRelation{ID: childID, Name: args[2]}
			if err := a.Catalog().AttachPartition(commandContext(cmd), scheme.Relation, child, bound); err != nil {
				return err
			}
			a.Invalidate()
			fmt.Fprintf(cmd.OutOrStdout(), "attached %s to %s [partition %d]\n", child.Name, scheme.Name, len(scheme.Children))
			return nil
		},
	}
	cmd.Flags().StringVar(&lower, "min", "", "Inclusive lower bound of a range partition")
	cmd.Flags().StringVar(&upper, "max", "", "Exclusive upper bound of a range partition")
	return cmd
}

func parseRelationID(s string) (types.RelationID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, apperrors.NewValidationError(apperrors.CodeInvalidRequest, fmt.Sprintf("relation id %q must be a positive integer", s))
	}
	return types.RelationID(n), nil
}

func decodeBound(kt types.KeyType, which, s string) (types.Datum, error) {
	d, err := types.DecodeDatum(kt, s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidBounds,
			fmt.Sprintf("--%s %q is not a %s value", which, s, kt), err)
	}
	return d, nil
}
