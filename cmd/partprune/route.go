package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkilian/partprune/internal/app"
	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/manifest"
	"github.com/arkilian/partprune/internal/partition"
	"github.com/arkilian/partprune/pkg/types"
)

func newRouteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "route <relation> <key>",
		Short: "Print the partition that stores a key value",
		Args:  cobra.ExactArgs(2),
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

			scheme, err := lookupScheme(cmd, a, args[0])
			if err != nil {
				return err
			}
			key, err := types.DecodeDatum(scheme.KeyType, args[1])
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidRequest,
					fmt.Sprintf("key %q is not a %s value", args[1], scheme.KeyType), err)
			}
			router, err := partition.NewRouter(scheme)
			if err != nil {
				return err
			}
			child, ok, err := router.RouteChild(key)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no partition accepts %s\n", scheme.Name, args[1])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (relation %d)\n", child.Name, child.ID)
			return nil
		},
	}
}

// lookupScheme resolves a partitioned relation by name.
func lookupScheme(cmd *cobra.Command, a *app.App, name string) (*types.PartitionScheme, error) {
	ctx := commandContext(cmd)
	id, ok, err := a.Repository().LookupRelation(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewCatalogError(apperrors.CodeRelationNotFound, "relation "+name+" not found", nil)
	}
	scheme, ok, err := manifest.Snapshot(ctx, a.Repository(), id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidRequest, "relation "+name+" is not partitioned")
	}
	return scheme, nil
}
