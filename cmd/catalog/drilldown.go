// Read commands: drilldown, path and sources.
package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

func newDrilldownCmd(a *app) *cobra.Command {
	var (
		opts     types.DrilldownOptions
		reparent bool
	)

	cmd := &cobra.Command{
		Use:   "drilldown <name>",
		Short: "Print the subtree below a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			if reparent {
				opts.Policy = types.PolicyReparent
			}
			tree, err := a.cat.Drilldown(ctx, c.CollectionID, opts)
			if err != nil {
				return storeErr("drilldown", err)
			}
			return a.emit(tree, func() error {
				tree.Walk(func(t *types.Tree, level int) bool {
					line := strings.Repeat("  ", level) + t.Collection.Name
					if t.Node != nil {
						line += "  " + t.Node.NodeID
					}
					fmt.Fprintln(a.stdout, line)
					return true
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.NodeID, "node", "", "start at this tree position of the collection")
	cmd.Flags().BoolVar(&opts.ShowInvisible, "show-invisible", false, "include invisible positions")
	cmd.Flags().BoolVar(&opts.ShowVirtual, "show-virtual", false, "include virtual positions")
	cmd.Flags().BoolVar(&reparent, "reparent", false, "keep nodes below excluded ones under their nearest shown ancestor")
	return cmd
}

// pathEntry is one element of the path command's structured output.
type pathEntry struct {
	NodeID       string `json:"node_id" yaml:"node_id"`
	CollectionID string `json:"collection_id" yaml:"collection_id"`
	Name         string `json:"name" yaml:"name"`
	Virtual      bool   `json:"virtual,omitempty" yaml:"virtual,omitempty"`
}

func newPathCmd(a *app) *cobra.Command {
	var opts types.PathOptions

	cmd := &cobra.Command{
		Use:   "path <name>",
		Short: "Print the path from a collection up to its root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			seq, err := a.cat.PathToRoot(ctx, c.CollectionID, opts)
			if err != nil {
				return storeErr("path", err)
			}

			var (
				nodes []*types.TreeNode
				ids   []string
			)
			for n, err := range seq {
				if err != nil {
					return storeErr("path", err)
				}
				nodes = append(nodes, n)
				ids = append(ids, n.CollectionID)
			}
			colls, err := a.store.CollectionsByID(ctx, ids)
			if err != nil {
				return storeErr("path", err)
			}

			entries := make([]pathEntry, len(nodes))
			for i, n := range nodes {
				entries[i] = pathEntry{NodeID: n.NodeID, CollectionID: n.CollectionID, Virtual: n.Virtual}
				if coll, ok := colls[n.CollectionID]; ok {
					entries[i].Name = coll.Name
				}
			}
			return a.emit(entries, func() error {
				names := make([]string, len(entries))
				for i, e := range entries {
					names[i] = e.Name
				}
				slices.Reverse(names)
				fmt.Fprintln(a.stdout, strings.Join(names, types.PathSeparator))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.NodeID, "node", "", "start at this tree position of the collection")
	cmd.Flags().BoolVar(&opts.FollowVirtual, "follow-virtual", false, "continue past virtual ancestors")
	return cmd
}

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List query-bearing collections with the ancestors their records also join",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := a.cat.MembershipSources(cmd.Context())
			if err != nil {
				return storeErr("sources", err)
			}
			return a.emit(sources, func() error {
				for _, s := range sources {
					fmt.Fprintf(a.stdout, "%s  %q", s.Collection.Name, s.Query)
					if len(s.Ancestors) > 0 {
						fmt.Fprintf(a.stdout, "  +%s", strings.Join(s.Ancestors, ","))
					}
					fmt.Fprintln(a.stdout)
				}
				return nil
			})
		},
	}
}
