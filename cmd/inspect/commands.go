package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/serialize"
	"github.com/replayio/devtools-sub005/internal/protocol"
	"github.com/replayio/devtools-sub005/internal/resolver/snapshot"
)

// run opens the backend under the command timeout and hands it to fn
func (o *options) run(cmd *cobra.Command, fn func(ctx context.Context, backend inspector.Backend) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	backend, release, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, backend)
}

func newEvaluateCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "evaluate <expression>",
		Short: "Evaluate an expression and print its preview",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, backend inspector.Backend) error {
				v, err := backend.Evaluate(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if !asJSON {
					fmt.Fprintln(cmd.OutOrStdout(), v.Summary())
					return nil
				}
				data, err := protocol.Marshal(protocol.ValueResponse{Value: &v})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the described value as JSON")
	return cmd
}

func newTreeCmd(opts *options) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "tree <expression>",
		Short: "Print the node tree of a value down to a depth",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, backend inspector.Backend) error {
				v, err := backend.Evaluate(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				tree := inspector.NewTree(backend).WithLogger(opts.logger)
				root := tree.NewRoot(v)
				defer tree.Teardown(root)
				return printTree(ctx, cmd.OutOrStdout(), tree, root, 0, depth)
			})
		},
	}
	cmd.Flags().IntVarP(&depth, "depth", "d", 2, "Levels to expand")
	return cmd
}

func newCopyCmd(opts *options) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "copy <expression>",
		Short: "Print the canonical serialization of a value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, backend inspector.Backend) error {
				v, err := backend.Evaluate(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				tree := inspector.NewTree(backend).WithLogger(opts.logger)
				root := tree.NewRoot(v)
				defer tree.Teardown(root)

				text, err := serialize.Serialize(ctx, tree, root, depth)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&depth, "depth", "d", serialize.DefaultMaxDepth, "Depth beyond which unloaded containers are truncated")
	return cmd
}

func newRecordCmd(opts *options) *cobra.Command {
	var (
		out   string
		depth int
	)

	cmd := &cobra.Command{
		Use:   "record <expression>...",
		Short: "Record the values of expressions into a snapshot file",
		Long: `record evaluates every expression, expands the resulting trees down to
--depth and writes everything the backend answered to --out. The file
format follows the extension: .json, .jsonc, .yaml, .toml or .cbor,
optionally followed by .zst or .lz4.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := snapshot.DetectFormat(out); err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, backend inspector.Backend) error {
				rec := snapshot.NewRecorder(backend)
				tree := inspector.NewTree(rec).WithLogger(opts.logger)

				for _, expr := range args {
					v, err := rec.Evaluate(ctx, expr)
					if err != nil {
						return fmt.Errorf("evaluate %q: %w", expr, err)
					}
					root := tree.NewRoot(v)
					err = printTree(ctx, io.Discard, tree, root, 0, depth)
					tree.Teardown(root)
					if err != nil {
						return err
					}
				}

				snap := rec.Snapshot()
				if err := snapshot.SaveFile(out, snap); err != nil {
					return err
				}
				stats := snap.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d roots, %d objects to %s\n", stats["roots"], stats["objects"], out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "snapshot.cbor.zst", "Snapshot file to write")
	cmd.Flags().IntVarP(&depth, "depth", "d", serialize.DefaultMaxDepth, "Levels to expand")
	return cmd
}

// printTree expands n down to limit levels and writes one line per node.
// Load errors are printed in place and do not stop the walk.
func printTree(ctx context.Context, w io.Writer, tree *inspector.Tree, n *inspector.Node, level, limit int) error {
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", level), label(n))

	if level >= limit || !n.Expandable() {
		return nil
	}
	children, err := tree.Expand(ctx, n)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(w, "%s! %v\n", strings.Repeat("  ", level+1), err)
		return nil
	}
	for _, c := range children {
		if err := printTree(ctx, w, tree, c, level+1, limit); err != nil {
			return err
		}
	}
	return nil
}

func label(n *inspector.Node) string {
	preview := n.Preview()
	switch {
	case n.Parent() == nil, n.IsBucket(), n.IsEllipsis():
		return preview
	case n.EntryKey() != nil:
		return n.EntryKey().Preview() + " => " + preview
	default:
		return n.Key().String() + ": " + preview
	}
}
