// Package registration wires the built-in provider factories. It exists so
// main and tests register clients explicitly instead of relying on init
// side effects.
package registration

import (
	"github.com/prodyapp/bodhi/internal/provider/anthropic"
	"github.com/prodyapp/bodhi/internal/provider/openai"
)

// RegisterBuiltins registers the built-in generation providers. Safe to call
// more than once.
func RegisterBuiltins() {
	openai.RegisterProviderFactory()
	anthropic.RegisterProviderFactory()
}
