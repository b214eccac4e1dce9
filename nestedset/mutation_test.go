package nestedset

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/bluesky-social/treeset/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertPositions(t *testing.T) {
	ctx := context.Background()

	fixtures := []struct {
		name   string
		parent int64
		pos    Position
		want   bounds
		order  []int64 // children of parent afterwards, -1 marks the new node
	}{
		{name: "last", parent: 3, pos: LastChild(), want: bounds{11, 12}, order: []int64{4, 5, 6, -1}},
		{name: "first", parent: 3, pos: FirstChild(), want: bounds{5, 6}, order: []int64{-1, 4, 5, 6}},
		{name: "before", parent: 3, pos: Before(5), want: bounds{7, 8}, order: []int64{4, -1, 5, 6}},
		{name: "after", parent: 3, pos: After(5), want: bounds{9, 10}, order: []int64{4, 5, -1, 6}},
		{name: "leaf", parent: 2, pos: LastChild(), want: bounds{3, 4}, order: []int64{-1}},
		{name: "root-first", parent: 1, pos: FirstChild(), want: bounds{2, 3}, order: []int64{-1, 2, 3, 7}},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			db, e := testEngine(t, true)

			id, err := e.Insert(ctx, f.parent, f.pos)
			require.NoError(err)
			require.NoError(e.Check(ctx))

			after := dump(t, db)
			assert.Len(after, 8)
			assert.Equal(f.want, after[id])
			assert.Equal(bounds{1, 16}, after[1])

			children, err := e.Children(ctx, f.parent)
			require.NoError(err)
			want := make([]int64, len(f.order))
			for i, c := range f.order {
				if c == -1 {
					c = id
				}
				want[i] = c
			}
			assert.Equal(want, ids(children))
		})
	}
}

func TestInsertAfterShiftsFollowingRows(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)

	_, err := e.Insert(ctx, 2, LastChild())
	require.NoError(err)

	after := dump(t, db)
	assert.Equal(bounds{2, 5}, after[2])
	assert.Equal(bounds{6, 13}, after[3])
	assert.Equal(bounds{7, 8}, after[4])
	assert.Equal(bounds{14, 15}, after[7])
}

func TestInsertValues(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)

	id, err := e.InsertValues(ctx, 7, LastChild(), map[string]any{"label": "c1"})
	require.NoError(err)

	var row models.TreeNode
	require.NoError(db.First(&row, id).Error)
	assert.Equal("c1", row.Label)
	assert.Equal(int64(13), row.Lft)
	assert.Equal(int64(14), row.Rgt)

	// boundaries are never taken from caller values
	_, err = e.InsertValues(ctx, 7, LastChild(), map[string]any{"lft": 99})
	assert.ErrorIs(err, ErrInvalidColumn)
	_, err = e.InsertValues(ctx, 7, LastChild(), map[string]any{"": 1})
	assert.ErrorIs(err, ErrInvalidColumn)
}

func TestInsertFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)
	before := dump(t, db)

	_, err := e.Insert(ctx, 100, LastChild())
	assert.ErrorIs(err, ErrNodeNotFound)

	// 4 is a grandchild of 1, not a child
	_, err = e.Insert(ctx, 1, Before(4))
	assert.ErrorIs(err, ErrInvalidPosition)

	_, err = e.Insert(ctx, 3, After(100))
	assert.ErrorIs(err, ErrNodeNotFound)

	_, err = e.Insert(ctx, 3, Position{Kind: PositionKind(42)})
	assert.ErrorIs(err, ErrInvalidPosition)

	assert.Equal(before, dump(t, db))
}

func TestInsertRollback(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)
	before := dump(t, db)

	// the shifts succeed, then the row insert fails on the unknown column
	_, err := e.InsertValues(ctx, 3, LastChild(), map[string]any{"no_such_column": "x"})
	require.Error(err)

	assert.Equal(before, dump(t, db))
	assert.NoError(e.Check(ctx))
}

func TestInsertRoot(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, false)

	_, err := e.ResolveRoot(ctx)
	assert.ErrorIs(err, ErrRootNotFound)

	// no parent can exist in an empty table
	_, err = e.Insert(ctx, 1, LastChild())
	assert.ErrorIs(err, ErrNodeNotFound)

	root, err := e.InsertRoot(ctx, map[string]any{"label": "root"})
	require.NoError(err)
	assert.Equal(bounds{1, 2}, dump(t, db)[root])

	id, err := e.ResolveRoot(ctx)
	require.NoError(err)
	assert.Equal(root, id)

	_, err = e.InsertRoot(ctx, nil)
	assert.ErrorIs(err, ErrRootExists)

	child, err := e.Insert(ctx, root, LastChild())
	require.NoError(err)
	assert.Equal(bounds{2, 3}, dump(t, db)[child])
	assert.NoError(e.Check(ctx))
}

func TestDeleteFixture(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)

	removed, err := e.Delete(ctx, 3)
	require.NoError(err)
	assert.Equal(int64(4), removed)

	assert.Equal(map[int64]bounds{
		1: {1, 6},
		2: {2, 3},
		7: {4, 5},
	}, dump(t, db))
	assert.NoError(e.Check(ctx))
}

func TestDeleteMissing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)
	before := dump(t, db)

	removed, err := e.Delete(ctx, 100)
	assert.ErrorIs(err, ErrNodeNotFound)
	assert.Equal(int64(0), removed)
	assert.Equal(before, dump(t, db))
}

func TestDeleteLeaf(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)

	removed, err := e.Delete(ctx, 4)
	require.NoError(err)
	assert.Equal(int64(1), removed)

	after := dump(t, db)
	assert.Len(after, 6)
	assert.Equal(bounds{4, 9}, after[3])
	assert.Equal(bounds{5, 6}, after[5])
	assert.Equal(bounds{1, 12}, after[1])
	assert.NoError(e.Check(ctx))
}

func TestDeleteRoot(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)

	_, err := e.ResolveRoot(ctx)
	require.NoError(err)

	removed, err := e.Delete(ctx, 1)
	require.NoError(err)
	assert.Equal(int64(7), removed)
	assert.Empty(dump(t, db))

	_, err = e.ResolveRoot(ctx)
	assert.ErrorIs(err, ErrRootNotFound)

	root, err := e.InsertRoot(ctx, nil)
	require.NoError(err)
	id, err := e.ResolveRoot(ctx)
	require.NoError(err)
	assert.Equal(root, id)
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	fixtures := []struct {
		name   string
		id     int64
		parent int64
		pos    Position
		want   map[int64]bounds
	}{
		{
			name: "left-under-sibling", id: 3, parent: 2, pos: LastChild(),
			want: map[int64]bounds{1: {1, 14}, 2: {2, 11}, 3: {3, 10}, 4: {4, 5}, 5: {6, 7}, 6: {8, 9}, 7: {12, 13}},
		},
		{
			name: "right-under-sibling", id: 2, parent: 3, pos: LastChild(),
			want: map[int64]bounds{1: {1, 14}, 3: {2, 11}, 4: {3, 4}, 5: {5, 6}, 6: {7, 8}, 2: {9, 10}, 7: {12, 13}},
		},
		{
			name: "before-first", id: 7, parent: 1, pos: Before(2),
			want: map[int64]bounds{1: {1, 14}, 7: {2, 3}, 2: {4, 5}, 3: {6, 13}, 4: {7, 8}, 5: {9, 10}, 6: {11, 12}},
		},
		{
			name: "up-a-level", id: 5, parent: 1, pos: After(3),
			want: map[int64]bounds{1: {1, 14}, 2: {2, 3}, 3: {4, 9}, 4: {5, 6}, 6: {7, 8}, 5: {10, 11}, 7: {12, 13}},
		},
		{
			name: "reorder-within-parent", id: 6, parent: 3, pos: FirstChild(),
			want: map[int64]bounds{1: {1, 14}, 2: {2, 3}, 3: {4, 11}, 6: {5, 6}, 4: {7, 8}, 5: {9, 10}, 7: {12, 13}},
		},
		{
			name: "down-into-cousin", id: 4, parent: 7, pos: LastChild(),
			want: map[int64]bounds{1: {1, 14}, 2: {2, 3}, 3: {4, 9}, 5: {5, 6}, 6: {7, 8}, 7: {10, 13}, 4: {11, 12}},
		},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			db, e := testEngine(t, true)

			require.NoError(e.Move(ctx, f.id, f.parent, f.pos))
			assert.Equal(f.want, dump(t, db))
			assert.NoError(e.Check(ctx))

			p, err := e.Parent(ctx, f.id)
			require.NoError(err)
			assert.Equal(f.parent, p.ID)
		})
	}
}

func TestMovePreservesSubtreeOrder(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)

	before := preorder(t, db, 3)
	require.NoError(e.Move(ctx, 3, 7, LastChild()))
	assert.Equal(before, preorder(t, db, 3))

	require.NoError(e.Move(ctx, 3, 2, FirstChild()))
	assert.Equal(before, preorder(t, db, 3))
	assert.NoError(e.Check(ctx))
}

func TestMoveNoop(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)
	before := dump(t, db)

	require.NoError(e.Move(ctx, 5, 3, Before(5)))
	require.NoError(e.Move(ctx, 5, 3, After(5)))
	require.NoError(e.Move(ctx, 5, 3, After(4)))
	require.NoError(e.Move(ctx, 5, 3, Before(6)))
	require.NoError(e.Move(ctx, 7, 1, LastChild()))
	require.NoError(e.Move(ctx, 2, 1, FirstChild()))

	assert.Equal(before, dump(t, db))
}

func TestMoveFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db, e := testEngine(t, true)
	before := dump(t, db)

	assert.ErrorIs(e.Move(ctx, 3, 3, LastChild()), ErrCyclicMove)
	assert.ErrorIs(e.Move(ctx, 3, 5, LastChild()), ErrCyclicMove)
	assert.ErrorIs(e.Move(ctx, 1, 7, LastChild()), ErrCyclicMove)
	assert.ErrorIs(e.Move(ctx, 100, 1, LastChild()), ErrNodeNotFound)
	assert.ErrorIs(e.Move(ctx, 3, 100, LastChild()), ErrNodeNotFound)
	assert.ErrorIs(e.Move(ctx, 2, 1, Before(5)), ErrInvalidPosition)

	assert.Equal(before, dump(t, db))
}

// randomly mutate a tree and check the invariants after every step
func TestRandomOperations(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	db, e := testEngine(t, false)

	root, err := e.InsertRoot(ctx, nil)
	require.NoError(err)

	rng := rand.New(rand.NewSource(42))
	pick := func() int64 {
		all := dump(t, db)
		keys := make([]int64, 0, len(all))
		for id := range all {
			keys = append(keys, id)
		}
		// map order is random, so sort before drawing from the seeded source
		slices.Sort(keys)
		return keys[rng.Intn(len(keys))]
	}
	positions := func(parent int64) Position {
		children, err := e.Children(ctx, parent)
		require.NoError(err)
		switch k := rng.Intn(4); {
		case k == 0 || len(children) == 0:
			return LastChild()
		case k == 1:
			return FirstChild()
		case k == 2:
			return Before(children[rng.Intn(len(children))].ID)
		default:
			return After(children[rng.Intn(len(children))].ID)
		}
	}

	for i := 0; i < 150; i++ {
		switch op := rng.Intn(10); {
		case op < 5:
			parent := pick()
			_, err := e.Insert(ctx, parent, positions(parent))
			require.NoError(err)
		case op < 7:
			id := pick()
			if id == root {
				continue
			}
			n, err := e.Node(ctx, id)
			require.NoError(err)
			countBefore, err := e.Count(ctx)
			require.NoError(err)

			removed, err := e.Delete(ctx, id)
			require.NoError(err)
			assert.Equal(n.Size(), removed)

			countAfter, err := e.Count(ctx)
			require.NoError(err)
			assert.Equal(countBefore-removed, countAfter)
		default:
			id, parent := pick(), pick()
			before := preorder(t, db, id)
			err := e.Move(ctx, id, parent, positions(parent))
			if err != nil {
				require.ErrorIs(err, ErrCyclicMove)
				continue
			}
			assert.Equal(before, preorder(t, db, id))
		}
		require.NoError(e.Check(ctx), "after step %d", i)

		id, err := e.ResolveRoot(ctx)
		require.NoError(err)
		assert.Equal(root, id)
	}
}

func TestConcurrentInserts(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	_, e := testEngine(t, true)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(parent int64) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := e.Insert(ctx, parent, FirstChild()); err != nil {
					errs <- err
				}
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	n, err := e.Count(ctx)
	require.NoError(err)
	require.Equal(int64(47), n)
	require.NoError(e.Check(ctx))
}
