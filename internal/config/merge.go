package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyLogging   = "logging"
	keySecrets   = "secrets"
	keyOpenAI    = "openai"
	keyAnthropic = "anthropic"
	keyAnalyze   = "analyze"
	keyImprove   = "improve"
)

// ShallowMergeYAML loads a YAML file and merges its top-level keys onto
// the target Config. Keys present in the overlay replace entire sections
// in the target. Keys absent in the overlay are left unchanged, and
// unknown keys are ignored.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]yaml.Node
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	for key, node := range overlay {
		if err = mergeSection(target, key, &node); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// mergeSection decodes node into a fresh zero value of the section named key
// and replaces that section of target. Sections are never merged field by
// field: a section present in the overlay wins completely.
func mergeSection(target *Config, key string, node *yaml.Node) error {
	switch key {
	case keyLogging:
		return replace(node, &target.Logging)
	case keySecrets:
		return replace(node, &target.Secrets)
	case keyOpenAI:
		return replace(node, &target.OpenAI)
	case keyAnthropic:
		return replace(node, &target.Anthropic)
	case keyAnalyze:
		return replace(node, &target.Analyze)
	case keyImprove:
		return replace(node, &target.Improve)
	default:
		return nil
	}
}

func replace[T any](node *yaml.Node, dst *T) error {
	var v T
	if err := node.Decode(&v); err != nil {
		return err
	}
	*dst = v
	return nil
}
