package domain

import "time"

type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}
