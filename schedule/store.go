package schedule

import "context"

// TemplateStore persists the recurring weekly class templates the
// materializer expands.
type TemplateStore interface {
	// SaveTemplate upserts a template by ID.
	SaveTemplate(ctx context.Context, t ClassTemplate) error

	// GetTemplate returns a template by ID, or nil when absent.
	GetTemplate(ctx context.Context, id TemplateID) (*ClassTemplate, error)

	// ListTemplates returns every template, ordered by ID.
	ListTemplates(ctx context.Context) ([]ClassTemplate, error)
}
