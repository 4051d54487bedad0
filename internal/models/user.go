package models

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by the login endpoint. Tokens are set as cookies.
type LoginResponse struct {
	Detail         string `json:"detail"`
	HasUserContext bool   `json:"has_user_context"`
}

// DetailResponse is the generic {detail} envelope used by refresh and error responses.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// UserRead is the authenticated user's profile.
type UserRead struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName returns the user's full name, falling back to the username.
func (u UserRead) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}
