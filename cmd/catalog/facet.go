// Facet commands: facet add, list, remove.
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFacetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facet",
		Short: "Manage the ranked facets of a collection",
	}
	cmd.AddCommand(newFacetAddCmd(a), newFacetListCmd(a), newFacetRemoveCmd(a))
	return cmd
}

func newFacetAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <collection> <order> <facet>",
		Short: "Assign a facet at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			order, err := strconv.Atoi(args[1])
			if err != nil {
				return userErr(fmt.Errorf("order %q is not a number", args[1]))
			}
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			f, err := a.store.AddFacet(ctx, c.CollectionID, order, args[2])
			if err != nil {
				return storeErr("add facet", err)
			}
			return a.emit(f, func() error {
				fmt.Fprintf(a.stdout, "Added facet %s at %d: %s\n", f.FacetName, f.Order, f.FacetID)
				return nil
			})
		},
	}
}

func newFacetListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection>",
		Short: "List facets in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			facets, err := a.store.Facets(ctx, c.CollectionID)
			if err != nil {
				return storeErr("list facets", err)
			}
			return a.emit(facets, func() error {
				for _, f := range facets {
					fmt.Fprintf(a.stdout, "%d  %s  %s\n", f.Order, f.FacetName, f.FacetID)
				}
				return nil
			})
		},
	}
}

func newFacetRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <facet-id>",
		Short: "Remove a facet assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.RemoveFacet(cmd.Context(), args[0]); err != nil {
				return storeErr("remove facet", err)
			}
			fmt.Fprintf(a.stdout, "Removed facet %s\n", args[0])
			return nil
		},
	}
}
