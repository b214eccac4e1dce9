package nestedset

import (
	"errors"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrRootNotFound = errors.New("unable to resolve a unique root node")
	ErrNoParent     = errors.New("node has no parent")
	ErrRootExists   = errors.New("tree already has a root")

	// structural mutations that would break the tree
	ErrCyclicMove      = errors.New("cannot move a node into its own subtree")
	ErrInvalidPosition = errors.New("invalid insert position")

	// configuration
	ErrInvalidTable  = errors.New("invalid table name")
	ErrInvalidColumn = errors.New("invalid column name")
	ErrInvalidRootID = errors.New("invalid root node id")

	ErrCorruptTree = errors.New("nested set boundaries are corrupt")
)
