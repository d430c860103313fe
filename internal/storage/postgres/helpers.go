package postgres

// derefString safely dereferences a string pointer, returning empty string if nil
func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// nullIfEmpty maps the empty string to a NULL-able pointer for optional columns.
func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
