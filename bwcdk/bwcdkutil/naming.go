package bwcdkutil

import (
	"fmt"

	"github.com/aws/constructs-go/constructs/v10"
	"github.com/iancoleman/strcase"
)

// Casing specifies how to format the identifier string.
type Casing int

const (
	// CasingCamel formats as CamelCase (e.g., "DemoTestWebAlb").
	CasingCamel Casing = iota
	// CasingLowerCamel formats as lowerCamelCase (e.g., "demoTestWebAlb").
	CasingLowerCamel
	// CasingSnake formats as snake_case (e.g., "demo_test_web_alb").
	CasingSnake
	// CasingScreamingSnake formats as SCREAMING_SNAKE_CASE (e.g., "DEMO_TEST_WEB_ALB").
	CasingScreamingSnake
	// CasingKebab formats as kebab-case (e.g., "demo-test-web-alb").
	CasingKebab
	// CasingScreamingKebab formats as SCREAMING-KEBAB-CASE (e.g., "DEMO-TEST-WEB-ALB").
	CasingScreamingKebab
)

// ResourceName generates a resource identifier prefixed with the stack's qualifier
// and deployment identifier. The label is a free-form string that the caller provides.
//
// The format is: "{qualifier}-{deploymentIdent}-{label}" converted to the specified casing.
//
// For shared stacks (no deployment identifier), the format is: "{qualifier}-{label}".
//
// Examples with qualifier "demo", deployment "Test", label "web-alb":
//   - CasingCamel:          "DemoTestWebAlb"
//   - CasingLowerCamel:     "demoTestWebAlb"
//   - CasingSnake:          "demo_test_web_alb"
//   - CasingScreamingSnake: "DEMO_TEST_WEB_ALB"
//   - CasingKebab:          "demo-test-web-alb"
//   - CasingScreamingKebab: "DEMO-TEST-WEB-ALB"
func ResourceName(scope constructs.Construct, label string, casing Casing) string {
	qualifier := Qualifier(scope)
	deploymentIdent := DeploymentIdent(scope)

	var base string
	if deploymentIdent != "" {
		base = fmt.Sprintf("%s-%s-%s", qualifier, deploymentIdent, label)
	} else {
		base = fmt.Sprintf("%s-%s", qualifier, label)
	}

	return applyCasing(base, casing)
}

// EnvironmentIdent turns an environment name into the deployment identifier
// used in stack names, e.g. "test" becomes "Test".
func EnvironmentIdent(name string) string {
	return strcase.ToCamel(name)
}

func applyCasing(s string, casing Casing) string {
	switch casing {
	case CasingCamel:
		return strcase.ToCamel(s)
	case CasingLowerCamel:
		return strcase.ToLowerCamel(s)
	case CasingSnake:
		return strcase.ToSnake(s)
	case CasingScreamingSnake:
		return strcase.ToScreamingSnake(s)
	case CasingKebab:
		return strcase.ToKebab(s)
	case CasingScreamingKebab:
		return strcase.ToScreamingKebab(s)
	default:
		return strcase.ToCamel(s)
	}
}
