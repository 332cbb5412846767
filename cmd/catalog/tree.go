// Tree commands: attach, move, detach, nodes, check.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

func newAttachCmd(a *app) *cobra.Command {
	var (
		opts      types.AttachOptions
		position  int
		invisible bool
		virtual   bool
	)

	cmd := &cobra.Command{
		Use:   "attach <name>",
		Short: "Place a collection in the tree",
		Long:  "Place a collection under a parent tree node, or as the root of a new tree\nwhen --parent is omitted. A collection may be attached at several places.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			opts.Position = positionFlag(cmd, position)
			if cmd.Flags().Changed("invisible") {
				visible := !invisible
				opts.Visible = &visible
			}
			if cmd.Flags().Changed("virtual") {
				opts.Virtual = &virtual
			}

			n, err := a.store.Attach(ctx, c.CollectionID, opts)
			if err != nil {
				return storeErr("attach", err)
			}
			return a.emit(n, func() error {
				fmt.Fprintf(a.stdout, "Attached %s at %s\n", c.Name, describeNode(n))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent tree node ID (default: start a new tree)")
	cmd.Flags().StringVar(&opts.TreeID, "tree", "", "tree the parent must belong to")
	cmd.Flags().IntVar(&position, "position", 0, "insert before the N-th child (default: append)")
	cmd.Flags().BoolVar(&invisible, "invisible", false, "hide the position from default drilldowns")
	cmd.Flags().BoolVar(&virtual, "virtual", false, "mark the position as virtual")
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	var (
		opts     types.MoveOptions
		position int
	)

	cmd := &cobra.Command{
		Use:   "move <node-id>",
		Short: "Move a subtree under another node",
		Long:  "Move the subtree rooted at a tree node under --parent, or make it a tree\nof its own when --parent is omitted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Position = positionFlag(cmd, position)
			if err := a.store.Move(ctx, args[0], opts); err != nil {
				return storeErr("move", err)
			}
			n, err := a.store.GetNode(ctx, args[0])
			if err != nil {
				return storeErr("move", err)
			}
			return a.emit(n, func() error {
				fmt.Fprintf(a.stdout, "Moved %s\n", describeNode(n))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "new parent tree node ID (default: new tree)")
	cmd.Flags().IntVar(&position, "position", 0, "insert before the N-th child (default: append)")
	return cmd
}

func newDetachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <node-id>",
		Short: "Remove a tree node and its subtree",
		Long:  "Remove a tree node and every position below it. The collections themselves\nare kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.DetachAndDelete(cmd.Context(), args[0]); err != nil {
				return storeErr("detach", err)
			}
			fmt.Fprintf(a.stdout, "Detached %s\n", args[0])
			return nil
		},
	}
}

func newNodesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes <name>",
		Short: "List the tree positions of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.collectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			nodes, err := a.store.NodesOf(ctx, c.CollectionID)
			if err != nil {
				return storeErr("nodes", err)
			}
			return a.emit(nodes, func() error {
				for _, n := range nodes {
					fmt.Fprintln(a.stdout, describeNode(n))
				}
				return nil
			})
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the nested-set bounds of every tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trees, err := a.store.TreeIDs(ctx)
			if err != nil {
				return storeErr("check", err)
			}
			var errs []error
			for _, id := range trees {
				if err := a.store.CheckTree(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("tree %s: %w", id, err))
				}
			}
			if err := errors.Join(errs...); err != nil {
				return sysErr(err)
			}
			fmt.Fprintf(a.stdout, "%d trees ok\n", len(trees))
			return nil
		},
	}
}
