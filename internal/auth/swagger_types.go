package auth

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"maria"`
	Password string `json:"password" example:"levey1jennings"`
}

// RefreshRequest is the request body for POST /auth/refresh and /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" example:"q1x8Pn0bVr..."`
}

// SetupRequest is the request body for POST /auth/setup.
type SetupRequest struct {
	Username string `json:"username" example:"admin"`
	Email    string `json:"email" example:"admin@lab.example"`
	Password string `json:"password" example:"change1me"`
}

// CreateUserRequest is the request body for POST /users.
type CreateUserRequest struct {
	Username string `json:"username" example:"maria"`
	Email    string `json:"email" example:"maria@lab.example"`
	Password string `json:"password" example:"levey1jennings"`
	Role     string `json:"role" example:"analyst" enums:"admin,analyst,viewer"`
}

// UpdateUserRequest is the request body for PUT /users/{id}.
type UpdateUserRequest struct {
	Email    string `json:"email" example:"maria@lab.example"`
	Role     string `json:"role" example:"viewer" enums:"admin,analyst,viewer"`
	Disabled bool   `json:"disabled" example:"false"`
}

// SetupStatusResponse is the response body for GET /auth/setup/status.
type SetupStatusResponse struct {
	SetupRequired bool   `json:"setup_required" example:"true"`
	Version       string `json:"version" example:"0.4.0"`
}
