package entities

// Operator is the dashboard account allowed to use the API
type Operator struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}
