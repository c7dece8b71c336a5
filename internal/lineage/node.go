package lineage

import (
	"time"

	"github.com/calctree/engine/internal/models"
	"github.com/google/uuid"
)

// Owner is the authenticated identity that creates a node.
// Ownership is attribution only; it does not restrict who may extend a node.
type Owner struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Node is the presentation view of one stored calculation.
type Node struct {
	ID        int64     `json:"id"`
	Owner     Owner     `json:"owner"`
	ParentID  *int64    `json:"parent_id"`
	IsRoot    bool      `json:"is_root"`
	Operator  *Operator `json:"operator,omitempty"`
	Operand   *float64  `json:"operand,omitempty"`
	Result    float64   `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// TreeNode is a Node with its children in the order records were supplied.
type TreeNode struct {
	Node
	Children []*TreeNode `json:"children"`
}

// NodeFromModel converts a stored record. The owner name is taken from the
// preloaded User association and is empty when it was not loaded.
func NodeFromModel(c *models.Calculation) Node {
	n := Node{
		ID:        c.ID,
		Owner:     Owner{ID: c.UserID, Name: c.User.Username},
		ParentID:  c.ParentID,
		IsRoot:    c.IsRoot,
		Operand:   c.Operand,
		Result:    c.Result,
		CreatedAt: c.CreatedAt,
	}
	if c.Operator != nil {
		op := Operator(*c.Operator)
		n.Operator = &op
	}
	return n
}

// NodesFromModels converts records in order.
func NodesFromModels(in []models.Calculation) []Node {
	out := make([]Node, len(in))
	for i := range in {
		out[i] = NodeFromModel(&in[i])
	}
	return out
}
