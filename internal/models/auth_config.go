package models

// AuthConfig selects how requests are tied to a user.
// With a JWT secret, bearer tokens signed with HS256 are required and the
// subject claim is the user id. Without one, UserHeader is trusted, which is
// only meant for local development.
type AuthConfig struct {
	JWTSecret  string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	UserHeader string `json:"user_header,omitempty" yaml:"user_header,omitempty"`
}
