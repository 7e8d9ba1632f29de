// Модели, которыми обмениваются шлюз, issuer и браузер.
package models

// User — запись пользователя в том виде, в каком её отдаёт issuer.
// Шлюз не интерпретирует поля, кроме ID и Email.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Credentials — тело запроса логина.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse — тело ответа POST /login.
// Refresh-токен в тело не попадает: он живёт только в HttpOnly cookie.
type LoginResponse struct {
	AccessToken string `json:"accessToken,omitempty"`
	User        *User  `json:"user,omitempty"`
	SessionID   string `json:"sessionId"`
	ExpiresAt   int64  `json:"expiresAt,omitempty"` // epoch-ms
	ExpiresIn   int64  `json:"expiresIn,omitempty"` // секунды
}

// RefreshResponse — тело ответа GET /refresh.
type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user,omitempty"`
	ExpiresAt   int64  `json:"expiresAt"` // epoch-ms
	ExpiresIn   int64  `json:"expiresIn"` // секунды
}

// LogoutResponse — тело ответа POST /logout.
type LogoutResponse struct {
	Success bool `json:"success"`
}
