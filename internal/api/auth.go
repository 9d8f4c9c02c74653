// Package api implements the HTTP surface of the dispatch service.
package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Tenant       string
	Role         string // admin, dispatcher, technician
	TechnicianID string
}

// getPrincipal extracts tenant and role from a bearer token when one
// is present, otherwise from dev headers.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{Tenant: pr.Tenant, Role: pr.Role, TechnicianID: pr.TechnicianID}
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	role := r.Header.Get("X-Role")
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role, TechnicianID: r.Header.Get("X-Technician-Id")}
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanDispatch reports whether the principal may search, commit, and
// apply schedule changes.
func (p Principal) CanDispatch() bool { return p.Role == "admin" || p.Role == "dispatcher" }
