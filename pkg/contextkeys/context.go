package contextkeys

type ContextKey string

const (
	// DBContextKey carries the *gorm.DB handle (pool or an open test
	// transaction) through the request context.
	DBContextKey ContextKey = "db"
)
