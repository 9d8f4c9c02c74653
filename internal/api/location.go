package api

import (
	"sync"
)

// TechLocation is the latest reported position of a technician.
type TechLocation struct {
	Tenant       string  `json:"tenantId"`
	TechnicianID string  `json:"technicianId"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	TS           string  `json:"ts"`
}

// LocationCache keeps the latest position per technician so boards can
// show where the crew is between assignments. Memory only; positions
// are transient and rebuilt from pings after a restart.
type LocationCache struct {
	mu sync.Mutex
	m  map[string]TechLocation // tenant|technicianId
}

func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]TechLocation{}} }

func (c *LocationCache) key(tenant, techID string) string { return tenant + "|" + techID }

func (c *LocationCache) Upsert(tenant, techID string, lat, lng float64, ts string) {
	if tenant == "" || techID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(tenant, techID)] = TechLocation{Tenant: tenant, TechnicianID: techID, Lat: lat, Lng: lng, TS: ts}
}

func (c *LocationCache) ListByTenant(tenant string) []TechLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []TechLocation{}
	prefix := tenant + "|"
	for k, v := range c.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}
