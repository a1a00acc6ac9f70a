package app

import (
	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg"
)

var staffRoles = []string{string(domain.RoleDoctor), string(domain.RoleAdmin)}

// CanChat 病患只能與醫師對話, 醫師與管理者之間可互相對話
func CanChat(a, b domain.Role) bool {
	switch {
	case a == domain.RolePatient:
		return b == domain.RoleDoctor
	case b == domain.RolePatient:
		return a == domain.RoleDoctor
	default:
		return pkg.Contains(staffRoles, string(a)) && pkg.Contains(staffRoles, string(b))
	}
}

// VisibleRoles 目錄中 viewer 可看到的角色, 未知角色看不到任何人
func VisibleRoles(viewer domain.Role) []domain.Role {
	switch viewer {
	case domain.RolePatient:
		return []domain.Role{domain.RoleDoctor}
	case domain.RoleDoctor:
		return []domain.Role{domain.RolePatient, domain.RoleDoctor, domain.RoleAdmin}
	case domain.RoleAdmin:
		return []domain.Role{domain.RoleDoctor, domain.RoleAdmin}
	default:
		return nil
	}
}
