package domain

import "time"

// Tenant is the tenants/{storeId} record.
type Tenant struct {
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name"`
	Admins     []string  `json:"admins"`
	Domain     string    `json:"domain,omitempty"`
	ClonedFrom string    `json:"cloned_from,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DomainMapping is the domains/{hostname} record.
type DomainMapping struct {
	Host      string    `json:"host,omitempty"`
	StoreID   string    `json:"store_id"`
	CreatedAt time.Time `json:"created_at"`
}
