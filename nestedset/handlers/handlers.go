package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bluesky-social/treeset/nestedset"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	tree *nestedset.Engine
}

func NewHandlers(tree *nestedset.Engine) *Handlers {
	return &Handlers{tree: tree}
}

// Register mounts every tree endpoint on e.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/_health", h.Health)

	e.GET("/root", h.GetRoot)
	e.GET("/tree", h.GetTree)
	e.GET("/check", h.GetCheck)

	e.GET("/nodes/:id", h.GetNode)
	e.GET("/nodes/:id/descendants", h.GetDescendants)
	e.GET("/nodes/:id/ancestors", h.GetAncestors)
	e.GET("/nodes/:id/children", h.GetChildren)
	e.GET("/nodes/:id/siblings", h.GetSiblings)

	e.POST("/nodes", h.PostNode)
	e.POST("/nodes/root", h.PostRoot)
	e.POST("/nodes/:id/move", h.PostMove)
	e.DELETE("/nodes/:id", h.DeleteNode)
}

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "treed"})
}

// treeError maps engine errors onto HTTP responses.
func treeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, nestedset.ErrNodeNotFound):
		return c.JSON(http.StatusNotFound, GenericError{Error: "NodeNotFound", Message: err.Error()})
	case errors.Is(err, nestedset.ErrRootNotFound):
		return c.JSON(http.StatusNotFound, GenericError{Error: "RootNotFound", Message: err.Error()})
	case errors.Is(err, nestedset.ErrCyclicMove):
		return c.JSON(http.StatusBadRequest, GenericError{Error: "CyclicMove", Message: err.Error()})
	case errors.Is(err, nestedset.ErrInvalidPosition):
		return c.JSON(http.StatusBadRequest, GenericError{Error: "InvalidPosition", Message: err.Error()})
	case errors.Is(err, nestedset.ErrInvalidColumn):
		return c.JSON(http.StatusBadRequest, GenericError{Error: "InvalidColumn", Message: err.Error()})
	case errors.Is(err, nestedset.ErrRootExists):
		return c.JSON(http.StatusConflict, GenericError{Error: "RootExists", Message: err.Error()})
	case errors.Is(err, nestedset.ErrCorruptTree):
		return c.JSON(http.StatusInternalServerError, GenericError{Error: "CorruptTree", Message: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, GenericError{Error: "InternalServerError", Message: err.Error()})
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, GenericError{Error: "BadRequest", Message: msg})
}

func nodeID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// GET /root
func (h *Handlers) GetRoot(c echo.Context) error {
	id, err := h.tree.ResolveRoot(c.Request().Context())
	if err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"id": id})
}

// GET /tree
func (h *Handlers) GetTree(c echo.Context) error {
	nodes, err := h.tree.Tree(c.Request().Context())
	if err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, nodes)
}

// GET /check
func (h *Handlers) GetCheck(c echo.Context) error {
	if err := h.tree.Check(c.Request().Context()); err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "treed"})
}

// GET /nodes/:id
func (h *Handlers) GetNode(c echo.Context) error {
	id, ok := nodeID(c)
	if !ok {
		return badRequest(c, "invalid node id")
	}
	n, err := h.tree.Node(c.Request().Context(), id)
	if err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handlers) listHandler(c echo.Context, list func(echo.Context, int64) ([]nestedset.Node, error)) error {
	id, ok := nodeID(c)
	if !ok {
		return badRequest(c, "invalid node id")
	}
	nodes, err := list(c, id)
	if err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, nodes)
}

// GET /nodes/:id/descendants
func (h *Handlers) GetDescendants(c echo.Context) error {
	return h.listHandler(c, func(c echo.Context, id int64) ([]nestedset.Node, error) {
		return h.tree.Descendants(c.Request().Context(), id)
	})
}

// GET /nodes/:id/ancestors
func (h *Handlers) GetAncestors(c echo.Context) error {
	return h.listHandler(c, func(c echo.Context, id int64) ([]nestedset.Node, error) {
		return h.tree.Ancestors(c.Request().Context(), id)
	})
}

// GET /nodes/:id/children
func (h *Handlers) GetChildren(c echo.Context) error {
	return h.listHandler(c, func(c echo.Context, id int64) ([]nestedset.Node, error) {
		return h.tree.Children(c.Request().Context(), id)
	})
}

// GET /nodes/:id/siblings
func (h *Handlers) GetSiblings(c echo.Context) error {
	return h.listHandler(c, func(c echo.Context, id int64) ([]nestedset.Node, error) {
		return h.tree.Siblings(c.Request().Context(), id)
	})
}

type PlacementRequest struct {
	Parent   int64  `json:"parent"`
	Position string `json:"position,omitempty"`
	Sibling  int64  `json:"sibling,omitempty"`
}

type InsertRequest struct {
	PlacementRequest
	Values map[string]any `json:"values,omitempty"`
}

type InsertResponse struct {
	ID int64 `json:"id"`
}

type DeleteResponse struct {
	Removed int64 `json:"removed"`
}

// POST /nodes
func (h *Handlers) PostNode(c echo.Context) error {
	var body InsertRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Parent <= 0 {
		return badRequest(c, "parent is required")
	}
	pos, err := nestedset.ParsePosition(body.Position, body.Sibling)
	if err != nil {
		return treeError(c, err)
	}

	id, err := h.tree.InsertValues(c.Request().Context(), body.Parent, pos, body.Values)
	if err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, InsertResponse{ID: id})
}

// POST /nodes/root
func (h *Handlers) PostRoot(c echo.Context) error {
	var body InsertRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	id, err := h.tree.InsertRoot(c.Request().Context(), body.Values)
	if err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, InsertResponse{ID: id})
}

// POST /nodes/:id/move
func (h *Handlers) PostMove(c echo.Context) error {
	id, ok := nodeID(c)
	if !ok {
		return badRequest(c, "invalid node id")
	}
	var body PlacementRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Parent <= 0 {
		return badRequest(c, "parent is required")
	}
	pos, err := nestedset.ParsePosition(body.Position, body.Sibling)
	if err != nil {
		return treeError(c, err)
	}

	if err := h.tree.Move(c.Request().Context(), id, body.Parent, pos); err != nil {
		return treeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DELETE /nodes/:id
func (h *Handlers) DeleteNode(c echo.Context) error {
	id, ok := nodeID(c)
	if !ok {
		return badRequest(c, "invalid node id")
	}
	removed, err := h.tree.Delete(c.Request().Context(), id)
	if err != nil {
		return treeError(c, err)
	}
	return c.JSON(http.StatusOK, DeleteResponse{Removed: removed})
}
