package models

// User is the authenticated-user projection. It is a cache of server state.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
