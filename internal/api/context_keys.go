package api

// contextKey namespaces values stored on a request context, avoiding
// collisions with keys other packages might set.
type contextKey string

const requestIDKey contextKey = "request_id"
