package common

const (
	// RefreshTokenCookieName is the cookie that carries the refresh token
	// between the browser and the HTTP edge.
	RefreshTokenCookieName = "refresh_token"

	// RequestIDHeaderName is echoed on every response.
	RequestIDHeaderName = "X-Request-Id"

	// Roles recognised by the service.
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
