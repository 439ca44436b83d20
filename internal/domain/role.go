package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// Role is the closed set of user roles recognised by the service.
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleAHO        Role = "aho"
	RoleSupervisor Role = "supervisor"
	RoleManager    Role = "manager"
)

var roleAliases = map[string]Role{
	"employee":     RoleEmployee,
	"сотрудник":    RoleEmployee,
	"aho":          RoleAHO,
	"ахо":          RoleAHO,
	"supervisor":   RoleSupervisor,
	"руководитель": RoleSupervisor,
	"manager":      RoleManager,
	"менеджер":     RoleManager,
}

// ParseRole maps a free-form role label onto the Role enum. Labels such as
// "Сотрудник АХО" resolve to RoleAHO because the AHO token wins over the
// generic employee word.
func ParseRole(raw string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", fmt.Errorf("empty role")
	}
	if role, ok := roleAliases[normalized]; ok {
		return role, nil
	}

	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var found Role
	for _, word := range words {
		role, ok := roleAliases[word]
		if !ok {
			continue
		}
		if role == RoleAHO {
			return RoleAHO, nil
		}
		if found == "" {
			found = role
		}
	}
	if found != "" {
		return found, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Valid reports whether r is one of the canonical role values.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleAHO, RoleSupervisor, RoleManager:
		return true
	}
	return false
}

// CanReadArchive reports whether the role may browse the archive.
func (r Role) CanReadArchive() bool {
	return r == RoleSupervisor || r == RoleManager
}

// IsAHO reports whether the role belongs to facilities staff.
func (r Role) IsAHO() bool {
	return r == RoleAHO
}
