// Package repository holds the SQL for the users and sessions tables.
//
// Every method takes a database.Executor, so the same repository runs
// against the pool or inside a transaction. Failures come back as
// *errs.HTTPError, ready to hand to a client.
package repository

// Repositories is a container for all repository instances.
type Repositories struct {
	Users    *UserRepository
	Sessions *SessionRepository
}

// NewRepositories constructs the repository container.
func NewRepositories() *Repositories {
	return &Repositories{
		Users:    &UserRepository{},
		Sessions: &SessionRepository{},
	}
}
