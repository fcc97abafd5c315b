// Package domain holds the listing aggregate: the property facts an agent
// enters plus the machine-written description those facts produce.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PropertyType string

const (
	PropertyApartment  PropertyType = "APARTMENT"
	PropertyHouse      PropertyType = "HOUSE"
	PropertyVilla      PropertyType = "VILLA"
	PropertyStudio     PropertyType = "STUDIO"
	PropertyTownhouse  PropertyType = "TOWNHOUSE"
	PropertyPenthouse  PropertyType = "PENTHOUSE"
	PropertyCommercial PropertyType = "COMMERCIAL"
	PropertyLand       PropertyType = "LAND"
	PropertyOther      PropertyType = "OTHER"
)

func (p PropertyType) Valid() bool {
	switch p {
	case PropertyApartment, PropertyHouse, PropertyVilla, PropertyStudio,
		PropertyTownhouse, PropertyPenthouse, PropertyCommercial, PropertyLand, PropertyOther:
		return true
	}
	return false
}

type Tone string

const (
	ToneProfessional Tone = "PROFESSIONAL"
	ToneLuxury       Tone = "LUXURY"
	ToneFriendly     Tone = "FRIENDLY"
	ToneConcise      Tone = "CONCISE"
	ToneDetailed     Tone = "DETAILED"
)

func (t Tone) Valid() bool {
	switch t {
	case ToneProfessional, ToneLuxury, ToneFriendly, ToneConcise, ToneDetailed:
		return true
	}
	return false
}

type TargetAudience string

const (
	AudienceFamilies           TargetAudience = "FAMILIES"
	AudienceYoungProfessionals TargetAudience = "YOUNG_PROFESSIONALS"
	AudienceRetirees           TargetAudience = "RETIREES"
	AudienceInvestors          TargetAudience = "INVESTORS"
	AudienceLuxuryBuyers       TargetAudience = "LUXURY_BUYERS"
	AudienceFirstTimeBuyers    TargetAudience = "FIRST_TIME_BUYERS"
	AudienceGeneral            TargetAudience = "GENERAL"
)

func (a TargetAudience) Valid() bool {
	switch a {
	case AudienceFamilies, AudienceYoungProfessionals, AudienceRetirees,
		AudienceInvestors, AudienceLuxuryBuyers, AudienceFirstTimeBuyers, AudienceGeneral:
		return true
	}
	return false
}

type Listing struct {
	ID                   snowflake.ID                `gorm:"primaryKey"`
	AccountID            snowflake.ID                `gorm:"not null;index:ix_listings_account_created"`
	PropertyType         PropertyType                `gorm:"type:text;not null"`
	Title                string                      `gorm:"type:text;not null"`
	Address              string                      `gorm:"type:text"`
	City                 string                      `gorm:"type:text;not null"`
	State                string                      `gorm:"type:text"`
	Country              string                      `gorm:"type:text;default:USA"`
	ZipCode              string                      `gorm:"type:text"`
	PriceCents           int64                       `gorm:"not null"`
	Bedrooms             *int
	Bathrooms            *float64
	SquareFeet           *int
	LotSize              *int
	YearBuilt            *int
	KeyFeatures          datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Tone                 Tone                        `gorm:"type:text;not null;default:PROFESSIONAL"`
	TargetAudience       TargetAudience              `gorm:"type:text;not null;default:GENERAL"`
	AdditionalNotes      string                      `gorm:"type:text"`
	GeneratedDescription string                      `gorm:"type:text"`
	EditedDescription    string                      `gorm:"type:text"`
	Slug                 string                      `gorm:"type:text;not null;uniqueIndex:ux_listings_slug"`
	IsFavorite           bool                        `gorm:"not null;default:false"`
	GenerationCount      int64                       `gorm:"not null;default:0"`
	CreatedAt            time.Time                   `gorm:"not null;index:ix_listings_account_created,sort:desc"`
	UpdatedAt            time.Time                   `gorm:"not null"`
}

// TableName sets the database table name.
func (Listing) TableName() string { return "listings" }

// FinalDescription prefers the agent's edit over the generated text.
func (l *Listing) FinalDescription() string {
	if l.EditedDescription != "" {
		return l.EditedDescription
	}
	return l.GeneratedDescription
}
