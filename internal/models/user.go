package models

// Role separates the two account tables. The lobby only authenticates players.
type Role string

const (
	RolePlayer    Role = "player"
	RoleDeveloper Role = "developer"
)

// User is an account row. Password holds the encoded argon2id hash once stored.
type User struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     Role   `json:"role"`
}
