package types

// ContextKey is the type for values the CLI stashes on its context
type ContextKey string

const (
	// DBKey carries the shared *catalog.DB between command hooks
	DBKey ContextKey = "db"
)
