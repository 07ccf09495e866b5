// Package permissions enforces operation-level access policy for plugins.
//
// Policies are declared in daemon configuration as glob patterns over
// qualified operation names ("plugin.operation"). Blocked patterns take
// precedence over allowed patterns, and an empty allowed list permits
// everything that is not blocked:
//
//	allowed: ["jira.*", "confluence.get_page"]
//	blocked: ["jira.delete_*"]
package permissions

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy holds operation allow and block patterns.
type Policy struct {
	// Allowed lists operation patterns that may execute. Empty means all
	// operations are allowed (subject to Blocked).
	Allowed []string `yaml:"allowed" json:"allowed,omitempty"`

	// Blocked lists operation patterns that may never execute. Takes
	// precedence over Allowed.
	Blocked []string `yaml:"blocked" json:"blocked,omitempty"`
}

// Error represents a policy denial. The message names the denied
// operation and the governing patterns but never whether the operation
// exists, so probing denied names leaks nothing.
type Error struct {
	// Operation is the qualified operation name that was denied
	Operation string

	// Allowed is the list of allowed patterns
	Allowed []string

	// Blocked is the list of blocked patterns
	Blocked []string

	// Message provides additional context
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("permission denied: %s", e.Operation)}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if len(e.Blocked) > 0 {
		parts = append(parts, fmt.Sprintf("blocked patterns: [%s]", strings.Join(e.Blocked, ", ")))
	}
	if len(e.Allowed) > 0 {
		parts = append(parts, fmt.Sprintf("allowed patterns: [%s]", strings.Join(e.Allowed, ", ")))
	}

	return strings.Join(parts, "; ")
}

// IsPermissionError returns true if the error is a policy denial.
func IsPermissionError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// Check reports whether a qualified operation name may execute under the
// policy. Returns nil if allowed. A nil policy allows everything.
func (p *Policy) Check(operation string) error {
	if p == nil {
		return nil
	}

	// Blocked list wins regardless of allowed patterns.
	for _, pattern := range p.Blocked {
		// Blocked patterns may be written with or without a leading !.
		checkPattern := strings.TrimPrefix(pattern, "!")

		if matchesPattern(operation, checkPattern) {
			return &Error{
				Operation: operation,
				Blocked:   p.Blocked,
				Message:   "operation is in blocked list",
			}
		}
	}

	if len(p.Allowed) == 0 {
		return nil
	}

	for _, pattern := range p.Allowed {
		if matchesPattern(operation, pattern) {
			return nil
		}
	}

	return &Error{
		Operation: operation,
		Allowed:   p.Allowed,
		Message:   "operation not in allowed patterns",
	}
}

// Filter returns the subset of qualified operation names the policy
// permits, preserving order.
func (p *Policy) Filter(operations []string) []string {
	if p == nil {
		return operations
	}

	allowed := make([]string, 0, len(operations))
	for _, op := range operations {
		if p.Check(op) == nil {
			allowed = append(allowed, op)
		}
	}

	return allowed
}

// QualifiedName joins a plugin name and operation into the form the
// policy matches against.
func QualifiedName(plugin, operation string) string {
	return plugin + "." + operation
}

// matchesPattern checks an operation name against a glob pattern.
func matchesPattern(operation, pattern string) bool {
	if operation == pattern {
		return true
	}

	matched, err := doublestar.Match(pattern, operation)
	if err != nil {
		// Invalid pattern falls back to exact match.
		return operation == pattern
	}

	return matched
}
