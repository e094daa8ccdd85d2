// Package models defines the domain types shared across the search pipeline:
// tenant context, retrieval candidates, and the rerank request/response wire
// contract.
package models

// TenantContext identifies the tenant a request operates on behalf of. Every
// cache key and every store query is scoped by its ID.
type TenantContext struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"active"`
}
