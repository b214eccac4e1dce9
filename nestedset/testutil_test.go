package nestedset

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/bluesky-social/treeset/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)),
		&gorm.Config{
			SkipDefaultTransaction: true,
			Logger:                 logger.Default.LogMode(logger.Silent),
		})
	require.NoError(t, err)

	sqldb, err := db.DB()
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqldb.Close()
	})

	require.NoError(t, models.RunAllMigrations(db))
	return db
}

// 1 (1,14)
// ├── 2 (2,3)
// ├── 3 (4,11)
// │   ├── 4 (5,6)
// │   ├── 5 (7,8)
// │   └── 6 (9,10)
// └── 7 (12,13)
var fixtureRows = []models.TreeNode{
	{ID: 1, Lft: 1, Rgt: 14, Label: "root"},
	{ID: 2, Lft: 2, Rgt: 3, Label: "a"},
	{ID: 3, Lft: 4, Rgt: 11, Label: "b"},
	{ID: 4, Lft: 5, Rgt: 6, Label: "b1"},
	{ID: 5, Lft: 7, Rgt: 8, Label: "b2"},
	{ID: 6, Lft: 9, Rgt: 10, Label: "b3"},
	{ID: 7, Lft: 12, Rgt: 13, Label: "c"},
}

func loadRows(t *testing.T, db *gorm.DB, rows []models.TreeNode) {
	t.Helper()
	cp := make([]models.TreeNode, len(rows))
	copy(cp, rows)
	require.NoError(t, db.Create(&cp).Error)
}

func testEngine(t *testing.T, withFixture bool) (*gorm.DB, *Engine) {
	t.Helper()
	db := testDB(t)
	if withFixture {
		loadRows(t, db, fixtureRows)
	}
	e, err := NewEngine(db, DefaultConfig())
	require.NoError(t, err)
	return db, e
}

type bounds [2]int64

func dump(t *testing.T, db *gorm.DB) map[int64]bounds {
	t.Helper()
	var rows []models.TreeNode
	require.NoError(t, db.Order("lft").Find(&rows).Error)
	out := make(map[int64]bounds, len(rows))
	for _, r := range rows {
		out[r.ID] = bounds{r.Lft, r.Rgt}
	}
	return out
}

func ids(nodes []Node) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

// preorder returns the ids of the subtree below id ordered by left boundary.
func preorder(t *testing.T, db *gorm.DB, id int64) []int64 {
	t.Helper()
	all := dump(t, db)
	root, ok := all[id]
	require.True(t, ok)
	var sub []int64
	for nid, b := range all {
		if b[0] > root[0] && b[1] < root[1] {
			sub = append(sub, nid)
		}
	}
	sort.Slice(sub, func(i, j int) bool { return all[sub[i]][0] < all[sub[j]][0] })
	return sub
}
