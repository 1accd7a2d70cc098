// Package memory holds in-process stores used by tests and STORE_BACKEND=memory.
// Each collection has its own lock; nothing spans collections.
package memory

type Store struct {
	*UsersRepo
	*PlacesRepo
	*ExperiencesRepo
}

func NewStore() *Store {
	return &Store{
		UsersRepo:       NewUsersRepo(),
		PlacesRepo:      NewPlacesRepo(),
		ExperiencesRepo: NewExperiencesRepo(),
	}
}
