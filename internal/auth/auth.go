package auth

import (
	"net/http"

	"factura/internal/domain"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type Session struct {
	UserID   string
	TenantID string
	Role     Role
}

// RequireSession извлекает идентичность вызывающего из заголовков
// запроса. Аутентификацию как таковую выполняет внешний шлюз, сюда
// приходят уже проверенные заголовки.
func RequireSession(r *http.Request) (*Session, error) {
	tenantID := r.Header.Get("X-Tenant-Id")
	userID := r.Header.Get("X-User-Id")
	role := Role(r.Header.Get("X-Role"))
	if role == "" {
		role = RoleMember
	}

	if tenantID == "" || userID == "" {
		return nil, domain.NewUnauthorized("missing caller identity")
	}

	return &Session{UserID: userID, TenantID: tenantID, Role: role}, nil
}
