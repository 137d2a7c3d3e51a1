package domain

import "time"

// User is the purchasing account an order is linked to. Identity itself is
// supplied by the upstream auth gateway; this record only carries what the
// storefront needs.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	OrderIDs    []string  `json:"orderIds"`
	CreatedAt   time.Time `json:"createdAt"`
}
