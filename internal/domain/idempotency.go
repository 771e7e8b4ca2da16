package domain

import "time"

// Idempotency is a stored response for an expensive POST analysis, keyed by
// (scope, key) where scope is the route that produced it. A retry carrying the
// same Idempotency-Key is answered from Body instead of re-running the search.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Scope       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_scope_key,priority:1"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idem_scope_key,priority:2"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	ContentType string    `gorm:"type:TEXT NOT NULL;default:'application/json'"`
	Body        []byte    `gorm:"type:BLOB"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
