package types

import "encoding/json"

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// StartRequest creates a root. Number accepts a JSON number or a numeric string.
type StartRequest struct {
	Number json.Number `json:"number" validate:"required"`
}

// OperationRequest extends the calculation ParentID. ParentID and Operator
// are checked by the lineage engine so that callers get its typed failures.
type OperationRequest struct {
	ParentID int64       `json:"parent_id"`
	Operator string      `json:"operator"`
	Operand  json.Number `json:"operand" validate:"required"`
}
