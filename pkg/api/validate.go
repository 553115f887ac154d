package api

import "strings"

// ValidateID checks a workflow/story/document/agent identifier against the
// strict allow-list (alphanumerics, '-', '_', '.') before it is allowed
// anywhere near a filesystem path. Path traversal sequences never pass:
// '/' and '\' are not in the allow-list, and "." / ".." are rejected
// outright.
func ValidateID(field, id string) error {
	if id == "" {
		return &ValidationError{Field: field, Value: id, Reason: "must not be empty"}
	}
	if id == "." || id == ".." {
		return &ValidationError{Field: field, Value: id, Reason: "path traversal is not allowed"}
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return &ValidationError{Field: field, Value: id, Reason: "only alphanumerics, '-', '_' and '.' are allowed"}
		}
	}
	return nil
}

// ValidateScopedKey validates a durable-store key whose ':'-separated
// segments must each pass the identifier allow-list.
func ValidateScopedKey(field, key string) error {
	if key == "" {
		return &ValidationError{Field: field, Value: key, Reason: "must not be empty"}
	}
	for _, seg := range strings.Split(key, ":") {
		if err := ValidateID(field, seg); err != nil {
			return err
		}
	}
	return nil
}

// ValidateState rejects agent states outside the allow-list.
func ValidateState(s AgentState) error {
	if !ValidStates[s] {
		return &ValidationError{Field: "status", Value: string(s), Reason: "unknown agent state"}
	}
	return nil
}
