// Package domain contains the canonical entity models and resolver contract.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jobsift/jobsift/internal/normalizer"
)

// CanonicalCompany is the single authoritative record for an employer.
// Identity is (normalized name, domain); records with no domain match only
// rows with an empty domain, so two distinct domains never merge silently.
type CanonicalCompany struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	NormalizedName string       `gorm:"type:text;not null;uniqueIndex:uq_company_identity" json:"normalized_name"`
	Domain         string       `gorm:"type:text;not null;default:'';uniqueIndex:uq_company_identity" json:"domain"`
	DisplayName    string       `gorm:"type:text;not null" json:"display_name"`
	Industry       string       `gorm:"type:text" json:"industry,omitempty"`
	SizeBucket     string       `gorm:"type:text" json:"size_bucket,omitempty"`
	FirstSeenAt    time.Time    `gorm:"not null" json:"first_seen_at"`
	LastSeenAt     time.Time    `gorm:"not null" json:"last_seen_at"`
	CreatedAt      time.Time    `gorm:"not null" json:"-"`
	UpdatedAt      time.Time    `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (CanonicalCompany) TableName() string { return "canonical_companies" }

// CanonicalLocation is one row per (city, region, country) identity tuple.
// Missing components are empty-string parts of the identity, not NULLs.
type CanonicalLocation struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	City        string       `gorm:"type:text;not null;default:'';uniqueIndex:uq_location_identity" json:"city"`
	Region      string       `gorm:"type:text;not null;default:'';uniqueIndex:uq_location_identity" json:"region"`
	Country     string       `gorm:"type:text;not null;default:'';uniqueIndex:uq_location_identity" json:"country"`
	Latitude    *float64     `json:"latitude,omitempty"`
	Longitude   *float64     `json:"longitude,omitempty"`
	RegionGroup string       `gorm:"type:text" json:"region_group,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (CanonicalLocation) TableName() string { return "canonical_locations" }

// Resolver maps normalized company/location views to canonical entities with
// lookup-or-create semantics. Identity matching is exact only; fuzzy company
// name matching is a future refinement, not a resolver concern.
type Resolver interface {
	ResolveCompany(ctx context.Context, view normalizer.View, observedAt time.Time) (*CanonicalCompany, error)
	ResolveLocation(ctx context.Context, view normalizer.View) (*CanonicalLocation, error)
}
