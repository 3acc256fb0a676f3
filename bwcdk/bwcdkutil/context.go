package bwcdkutil

import (
	"fmt"

	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

func readContextString(scope constructs.Construct, key string, errs []string) (string, []string) {
	val := scope.Node().TryGetContext(jsii.String(key))
	if val == nil {
		return "", append(errs, fmt.Sprintf("context key %q is not set", key))
	}
	s, ok := val.(string)
	if !ok {
		return "", append(errs, fmt.Sprintf("context key %q must be a string, got %T", key, val))
	}
	return s, errs
}

// readOptionalContextString returns "" for absent or non-string values.
func readOptionalContextString(scope constructs.Construct, key string) string {
	val := scope.Node().TryGetContext(jsii.String(key))
	if val == nil {
		return ""
	}
	s, _ := val.(string)
	return s
}
