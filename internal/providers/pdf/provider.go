// Package pdf hosts the HTML→PDF conversion collaborator.
package pdf

import (
	"context"

	"go.uber.org/fx"
)

// Converter turns a rendered HTML document into a PDF byte stream.
type Converter interface {
	Convert(ctx context.Context, html string) ([]byte, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
