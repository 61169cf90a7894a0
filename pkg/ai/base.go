package ai

import (
	"context"
)

// Provider is the base interface for grounding providers: translating a
// natural-language question into a structured query, and summarizing query
// results back into natural language.
type Provider interface {
	// GenerateQuery translates a question into SQL against the given schema.
	GenerateQuery(ctx context.Context, req *QueryRequest) (string, error)

	// SummarizeRows renders raw result rows into a short spoken-style answer.
	SummarizeRows(ctx context.Context, req *SummarizeRowsRequest) (string, error)

	// IsAvailable checks if the provider is available/configured
	IsAvailable() bool

	// Name returns the provider name
	Name() string
}

// QueryRequest carries the question plus grounding material: the fixed
// schema description and recent conversation turns rendered as text.
type QueryRequest struct {
	Question string
	Schema   string
	History  string
}

// SummarizeRowsRequest carries the executed query and its (possibly sampled)
// result rows.
type SummarizeRowsRequest struct {
	Question  string
	Query     string
	Rows      []map[string]interface{}
	Truncated bool
}
