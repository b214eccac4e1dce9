package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bluesky-social/treeset/nestedset"

	"github.com/urfave/cli/v2"
	"github.com/xlab/treeprint"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var placementFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "position",
		Usage: "where under the parent: first, last, before, after",
		Value: "last",
	},
	&cli.Int64Flag{
		Name:  "sibling",
		Usage: "sibling node id for 'before' and 'after' positions",
	},
}

var cmdInit = &cli.Command{
	Name:  "init",
	Usage: "create the schema and, for an empty table, a root node",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "label",
			Usage: "label for the root node",
			Value: "root",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		_, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		n, err := engine.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			fmt.Printf("table already holds %d nodes\n", n)
			return nil
		}
		id, err := engine.InsertRoot(ctx, labelValues(cctx, cctx.String("label")))
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var cmdRoot = &cli.Command{
	Name:  "root",
	Usage: "print the root node id",
	Action: func(cctx *cli.Context) error {
		_, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		id, err := engine.ResolveRoot(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var cmdInsert = &cli.Command{
	Name:      "insert",
	Usage:     "attach a new leaf below a parent node",
	ArgsUsage: "<parent-id>",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "label",
			Usage: "label for the new node",
		},
	}, placementFlags...),
	Action: func(cctx *cli.Context) error {
		parent, err := idArg(cctx)
		if err != nil {
			return err
		}
		pos, err := nestedset.ParsePosition(cctx.String("position"), cctx.Int64("sibling"))
		if err != nil {
			return err
		}
		_, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		id, err := engine.InsertValues(cctx.Context, parent, pos, labelValues(cctx, cctx.String("label")))
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var cmdDelete = &cli.Command{
	Name:      "delete",
	Usage:     "delete a node and its whole subtree",
	ArgsUsage: "<node-id>",
	Action: func(cctx *cli.Context) error {
		id, err := idArg(cctx)
		if err != nil {
			return err
		}
		_, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		removed, err := engine.Delete(cctx.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d nodes\n", removed)
		return nil
	},
}

var cmdMove = &cli.Command{
	Name:      "move",
	Usage:     "move a subtree below a new parent",
	ArgsUsage: "<node-id>",
	Flags: append([]cli.Flag{
		&cli.Int64Flag{
			Name:     "parent",
			Usage:    "new parent node id",
			Required: true,
		},
	}, placementFlags...),
	Action: func(cctx *cli.Context) error {
		id, err := idArg(cctx)
		if err != nil {
			return err
		}
		pos, err := nestedset.ParsePosition(cctx.String("position"), cctx.Int64("sibling"))
		if err != nil {
			return err
		}
		_, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		return engine.Move(cctx.Context, id, cctx.Int64("parent"), pos)
	},
}

var cmdShow = &cli.Command{
	Name:  "show",
	Usage: "print the whole tree",
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context
		db, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		n, err := engine.Count(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("(empty)")
			return nil
		}

		rootID, err := engine.ResolveRoot(ctx)
		if err != nil {
			return err
		}
		nodes, err := engine.Tree(ctx)
		if err != nil {
			return err
		}
		labels, err := loadLabels(ctx, db, engine.Config(), cctx.String("label-column"))
		if err != nil {
			return err
		}

		fmt.Println(renderTree(rootID, nodes, labels).String())
		return nil
	},
}

var cmdDescendants = &cli.Command{
	Name:      "descendants",
	Usage:     "list every node below a node, in pre-order",
	ArgsUsage: "<node-id>",
	Action: listAction(func(ctx context.Context, e *nestedset.Engine, id int64) ([]nestedset.Node, error) {
		return e.Descendants(ctx, id)
	}),
}

var cmdAncestors = &cli.Command{
	Name:      "ancestors",
	Usage:     "list the nodes above a node, root first",
	ArgsUsage: "<node-id>",
	Action: listAction(func(ctx context.Context, e *nestedset.Engine, id int64) ([]nestedset.Node, error) {
		return e.Ancestors(ctx, id)
	}),
}

var cmdChildren = &cli.Command{
	Name:      "children",
	Usage:     "list the direct children of a node",
	ArgsUsage: "<node-id>",
	Action: listAction(func(ctx context.Context, e *nestedset.Engine, id int64) ([]nestedset.Node, error) {
		return e.Children(ctx, id)
	}),
}

var cmdCheck = &cli.Command{
	Name:  "check",
	Usage: "verify the nested-set invariants over the whole table",
	Action: func(cctx *cli.Context) error {
		_, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		if err := engine.Check(cctx.Context); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func listAction(list func(context.Context, *nestedset.Engine, int64) ([]nestedset.Node, error)) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		id, err := idArg(cctx)
		if err != nil {
			return err
		}
		_, engine, err := openEngine(cctx)
		if err != nil {
			return err
		}
		nodes, err := list(cctx.Context, engine, id)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Printf("%d\t%d\t%d\n", n.ID, n.Left, n.Right)
		}
		return nil
	}
}

func idArg(cctx *cli.Context) (int64, error) {
	s := cctx.Args().First()
	if s == "" {
		return 0, fmt.Errorf("need to provide a node id as an argument")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid node id: %q", s)
	}
	return id, nil
}

func labelValues(cctx *cli.Context, label string) map[string]any {
	col := cctx.String("label-column")
	if col == "" || label == "" {
		return nil
	}
	return map[string]any{col: label}
}

type labelRow struct {
	NodeID int64   `gorm:"column:node_id"`
	Label  *string `gorm:"column:label"`
}

func loadLabels(ctx context.Context, db *gorm.DB, config nestedset.Config, labelColumn string) (map[int64]string, error) {
	out := map[int64]string{}
	if labelColumn == "" {
		return out, nil
	}
	var rows []labelRow
	err := db.WithContext(ctx).
		Table(config.Table).
		Select("? AS node_id, ? AS label", clause.Column{Name: config.IDColumn}, clause.Column{Name: labelColumn}).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading labels: %w", err)
	}
	for _, r := range rows {
		if r.Label != nil {
			out[r.NodeID] = *r.Label
		}
	}
	return out, nil
}

func displayNode(id int64, labels map[int64]string) string {
	if l, ok := labels[id]; ok && l != "" {
		return fmt.Sprintf("%s [%d]", l, id)
	}
	return fmt.Sprintf("[%d]", id)
}

// renderTree turns the pre-order view (root excluded) back into branches.
func renderTree(rootID int64, nodes []nestedset.TreeNode, labels map[int64]string) treeprint.Tree {
	tree := treeprint.NewWithRoot(displayNode(rootID, labels))
	branches := []treeprint.Tree{tree}
	for i, n := range nodes {
		// leave only the branches for depths above this node
		branches = branches[:n.Depth]
		parent := branches[len(branches)-1]
		hasChildren := i+1 < len(nodes) && nodes[i+1].Depth > n.Depth
		if hasChildren {
			branches = append(branches, parent.AddBranch(displayNode(n.ID, labels)))
		} else {
			parent.AddNode(displayNode(n.ID, labels))
			branches = append(branches, parent)
		}
	}
	return tree
}
