package store

// UserRecord is a registered chat user as persisted.
type UserRecord struct {
	ID       int64
	Name     string
	WakeTime string
}
