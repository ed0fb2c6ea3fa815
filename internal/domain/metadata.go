package domain

// ExecutionMetadata is the free-form provenance document stored in
// job_queue.execution_metadata. It is never primary state; only the keys
// below have typed accessors, everything else stays opaque.
type ExecutionMetadata map[string]any

// NewExecutionMetadata starts a metadata document with the worker identity.
func NewExecutionMetadata(gpu, nodeID string) ExecutionMetadata {
	return ExecutionMetadata{"gpu": gpu, "node_id": nodeID}
}

// WithRuntime records the total runtime in milliseconds.
func (m ExecutionMetadata) WithRuntime(ms int64) ExecutionMetadata {
	m["runtime"] = ms
	return m
}

// WithError records the failure diagnostic.
func (m ExecutionMetadata) WithError(msg string) ExecutionMetadata {
	m["error"] = msg
	return m
}

// Node returns the claiming worker's id, if recorded.
func (m ExecutionMetadata) Node() string { return m.str("node") }

// AssignedAt returns the claim timestamp string, if recorded.
func (m ExecutionMetadata) AssignedAt() string { return m.str("assigned_at") }

// ErrorMessage returns the recorded failure diagnostic, if any.
func (m ExecutionMetadata) ErrorMessage() string { return m.str("error") }

// Runtime returns the recorded runtime in milliseconds. JSON decoding may
// deliver it as float64.
func (m ExecutionMetadata) Runtime() (int64, bool) {
	switch v := m["runtime"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func (m ExecutionMetadata) str(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
