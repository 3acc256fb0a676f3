// Package cfnvalidate checks the CloudFormation templates cdk synth writes to
// its output directory before any of them is deployed.
package cfnvalidate

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// TemplatePath is where cdk synth writes the template of stackName.
func TemplatePath(cdkDir, stackName string) string {
	return filepath.Join(cdkDir, "cdk.out", stackName+".template.json")
}

// SynthesizedTemplate verifies that the template at templatePath has resources
// and declares every output in outputs. Synthesized templates are JSON, which
// the YAML parser reads as well.
func SynthesizedTemplate(templatePath string, outputs ...string) error {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return errors.Wrapf(err, "reading template %s", templatePath)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "parsing template")
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return errors.New("invalid template document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errors.New("template root is not a mapping")
	}

	resources := findMappingValue(root, "Resources")
	if resources == nil || len(resources.Content) == 0 {
		return errors.New("template has no Resources section")
	}

	if len(outputs) == 0 {
		return nil
	}
	declared := findMappingValue(root, "Outputs")
	for _, name := range outputs {
		if declared == nil || findMappingValue(declared, name) == nil {
			return errors.Newf("template does not declare output %q", name)
		}
	}

	return nil
}

func findMappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
