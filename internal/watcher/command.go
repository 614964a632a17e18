package watcher

import (
	"fmt"
	"regexp"
	"strings"
)

// Recognized argument-template placeholders. Anything else in braces is a
// configuration error: silently passing typos like {output_dr} through to
// the processing command would fail in ways that are painful to trace.
const (
	placeholderInput  = "{input_dir}"
	placeholderOutput = "{output_dir}"
	placeholderConfig = "{config_path}"
)

var rePlaceholder = regexp.MustCompile(`\{[^{}]*\}`)

// commandTemplate is a parsed argument template. Substitution happens per
// launch; parsing and validation happen once at startup.
type commandTemplate struct {
	fields     []string
	configPath string
}

func parseCommandTemplate(arguments, configPath string) (*commandTemplate, error) {
	fields := strings.Fields(arguments)
	if len(fields) == 0 {
		return nil, fmt.Errorf("job.arguments: template is empty")
	}

	usesConfig := false
	for _, f := range fields {
		for _, ph := range rePlaceholder.FindAllString(f, -1) {
			switch ph {
			case placeholderInput, placeholderOutput:
			case placeholderConfig:
				usesConfig = true
			default:
				return nil, fmt.Errorf("job.arguments: unknown placeholder %s", ph)
			}
		}
	}
	if usesConfig && strings.TrimSpace(configPath) == "" {
		return nil, fmt.Errorf("job.config_path: required because job.arguments uses %s", placeholderConfig)
	}

	return &commandTemplate{fields: fields, configPath: configPath}, nil
}

// Args substitutes the placeholders with absolute paths for one run.
func (t *commandTemplate) Args(inputDir, outputDir string) []string {
	r := strings.NewReplacer(
		placeholderInput, inputDir,
		placeholderOutput, outputDir,
		placeholderConfig, t.configPath,
	)
	out := make([]string, len(t.fields))
	for i, f := range t.fields {
		out[i] = r.Replace(f)
	}
	return out
}
