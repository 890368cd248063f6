// Package service declares the backend contracts the engine consumes and
// ships an in-memory implementation plus a JSON over HTTP client. Failures
// are returned to the caller as-is; nothing here retries.
package service

import (
	"context"
	"strings"

	"github.com/goliatone/go-stepflow/workflow"
)

// DefinitionKey addresses a workflow definition.
type DefinitionKey struct {
	Domain string `json:"domain"`
	Scope  string `json:"scope"`
}

func (k DefinitionKey) String() string {
	return strings.TrimSpace(k.Domain) + "/" + strings.TrimSpace(k.Scope)
}

// DefinitionService stores published workflow definitions.
type DefinitionService interface {
	FetchDefinition(ctx context.Context, key DefinitionKey) (*workflow.Definition, error)
	SaveDefinition(ctx context.Context, key DefinitionKey, def *workflow.Definition) error
	DeleteDefinition(ctx context.Context, key DefinitionKey) error
	ListDefinitions(ctx context.Context) ([]DefinitionKey, error)
}

// RecordService mutates the records a wizard run commits to.
type RecordService interface {
	GetRecord(ctx context.Context, domain, id string) (map[string]any, error)
	CreateRecord(ctx context.Context, domain string, data map[string]any) (string, error)
	UpdateRecord(ctx context.Context, domain, id string, data map[string]any) error
	DeleteRecord(ctx context.Context, domain, id string) error
}

// UniquenessChecker answers whether a field value is unused in a domain.
type UniquenessChecker interface {
	IsUnique(ctx context.Context, domain, field string, value any) (bool, error)
}
