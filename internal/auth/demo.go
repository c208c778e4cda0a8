package auth

import "github.com/imrishuroy/po-approvals/internal/roles"

// DemoUsers returns one active user per role with stable IDs. cmd/seed
// writes them to the users table and the memory backend serves them directly.
func DemoUsers() []*User {
	return []*User{
		{ID: "8a1f4c1e-0d1b-4d5e-9a11-000000000001", Username: "employee", Name: "Employee User", Email: "employee@example.com", Role: roles.Employee, Active: true},
		{ID: "8a1f4c1e-0d1b-4d5e-9a11-000000000002", Username: "specialist", Name: "Specialist User", Email: "specialist@example.com", Role: roles.Specialist, Active: true},
		{ID: "8a1f4c1e-0d1b-4d5e-9a11-000000000003", Username: "manager", Name: "Manager User", Email: "manager@example.com", Role: roles.Manager, Active: true},
		{ID: "8a1f4c1e-0d1b-4d5e-9a11-000000000004", Username: "deputy_md", Name: "Deputy MD", Email: "deputy_md@example.com", Role: roles.DeputyMD, Active: true},
		{ID: "8a1f4c1e-0d1b-4d5e-9a11-000000000005", Username: "md", Name: "Managing Director", Email: "md@example.com", Role: roles.MD, Active: true},
		{ID: "8a1f4c1e-0d1b-4d5e-9a11-000000000006", Username: "admin", Name: "Administrator", Email: "admin@example.com", Role: roles.Admin, Active: true},
	}
}
