package oracle

import (
	"context"
	"strings"
)

// MockCompleter implements ChatCompleter without calling a model. It declines
// every classification and every label suggestion, so runs exercise the
// pipeline end to end with all records staying unknown. It exists for local
// runs and tests without model access.
type MockCompleter struct{}

// NewMockCompleter creates a new mock completer.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete answers the decline sentinel of whichever prompt it was given.
func (c *MockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "summarize the common issue") {
		return "<tag>" + NoNewTag + "</tag>", nil
	}

	return "<tag>unknown</tag>", nil
}
