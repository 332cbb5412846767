// Collection commands: create, rename, delete, list.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

func newCreateCmd(a *app) *cobra.Command {
	var query, reference string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := &types.Collection{Name: args[0]}
			if cmd.Flags().Changed("query") {
				c.Query = &query
			}
			if reference != "" {
				target, err := a.collectionByName(ctx, reference)
				if err != nil {
					return err
				}
				c.ReferenceID = &target.CollectionID
			}

			if _, err := a.store.CreateCollection(ctx, c); err != nil {
				return storeErr("create collection", err)
			}
			return a.emit(c, func() error {
				fmt.Fprintf(a.stdout, "Created collection %s: %s\n", c.Name, c.CollectionID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "query selecting the collection's documents")
	cmd.Flags().StringVar(&reference, "reference", "", "name of the collection this one stands in for")
	return cmd
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			c.Name = args[1]
			if err := a.store.UpdateCollection(ctx, c); err != nil {
				return storeErr("rename collection", err)
			}
			return a.emit(c, func() error {
				fmt.Fprintf(a.stdout, "Renamed %s to %s\n", args[0], c.Name)
				return nil
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a collection with every subtree under its positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteCollection(ctx, c.CollectionID); err != nil {
				return storeErr("delete collection", err)
			}
			fmt.Fprintf(a.stdout, "Deleted collection %s\n", c.Name)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		roots     bool
		withQuery bool
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				colls []*types.Collection
				err   error
			)
			if roots {
				colls, err = a.store.RootCollections(ctx)
			} else {
				filter := types.CollectionFilter{Limit: limit, Offset: offset}
				if cmd.Flags().Changed("with-query") {
					filter.HasQuery = &withQuery
				}
				colls, err = a.store.ListCollections(ctx, filter)
			}
			if err != nil {
				return storeErr("list collections", err)
			}

			return a.emit(colls, func() error {
				for _, c := range colls {
					line := c.CollectionID + "  " + c.Name
					if c.HasQuery() {
						line += "  query=" + *c.Query
					}
					if c.Kind() == types.KindReference {
						line += "  -> " + *c.ReferenceID
					}
					fmt.Fprintln(a.stdout, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&roots, "roots", false, "only collections without a parent")
	cmd.Flags().BoolVar(&withQuery, "with-query", false, "only collections with (true) or without (false) a query")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of collections")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of collections to skip")
	return cmd
}
