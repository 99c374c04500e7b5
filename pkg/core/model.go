package core

import (
	"fmt"
	"strings"
)

// ModelTarget is one {provider, model} entry of an ordered LLM chain.
type ModelTarget struct {
	Provider string
	Model    string
}

// String returns the "provider/model" form.
func (t ModelTarget) String() string {
	return t.Provider + "/" + t.Model
}

// ParseModelString parses a model string in the format "provider/model-name".
// Only the first slash separates the provider, so OpenRouter ids such as
// "openrouter/meta-llama/llama-3.1-8b-instruct" keep their vendor prefix.
func ParseModelString(model string) (provider string, modelName string, err error) {
	parts := strings.SplitN(strings.TrimSpace(model), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", NewInvalidRequestError(
			fmt.Sprintf("invalid model format: %q, expected 'provider/model-name'", model),
		)
	}
	return parts[0], parts[1], nil
}

// ParseModelChain parses an ordered list of "provider/model" strings.
func ParseModelChain(models []string) ([]ModelTarget, error) {
	out := make([]ModelTarget, 0, len(models))
	for _, m := range models {
		provider, name, err := ParseModelString(m)
		if err != nil {
			return nil, err
		}
		out = append(out, ModelTarget{Provider: provider, Model: name})
	}
	return out, nil
}
