package models

import (
	"gorm.io/gorm"
)

// TreeNode is the default row layout managed by treed. The nested-set engine
// only touches id, lft and rgt; label is carried along as payload.
type TreeNode struct {
	ID int64 `gorm:"column:id;primarykey"`

	// nested-set boundaries. must not carry unique indexes: shifts pass
	// through duplicate values while a statement is running
	Lft int64 `gorm:"column:lft;index;not null"`
	Rgt int64 `gorm:"column:rgt;index;not null"`

	Label string `gorm:"column:label"`
}

func (TreeNode) TableName() string {
	return "nodes"
}

func RunAllMigrations(db *gorm.DB) error {
	return db.AutoMigrate(&TreeNode{})
}
