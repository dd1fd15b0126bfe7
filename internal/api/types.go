package api

import "github.com/vfxbuddies/buddies/internal/inspect"

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Inspection is the result of one POST /v1/inspect.
type Inspection struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	CreatedAt int64            `json:"created_at"`
	Summary   *inspect.Summary `json:"summary"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
