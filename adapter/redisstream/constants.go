package redisstream

// Field constants (avoid typos/allocs)
const (
	fieldKind      = "kind"
	fieldID        = "id"
	fieldCreatedAt = "createdAt" // int64 unix microseconds
	fieldVersion   = "version"
	fieldPayload   = "payload"  // JSON object, key order preserved
	fieldMetadata  = "metadata" // JSON object, key order preserved
)
