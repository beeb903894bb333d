package models

import "time"

type Business struct {
	ID            int64     `json:"id" yaml:"id" bson:"_id"`
	Slug          string    `json:"slug" yaml:"slug" bson:"slug"`
	BusinessName  string    `json:"business_name" yaml:"business_name" bson:"business_name"`
	Description   string    `json:"description" yaml:"description" bson:"description"`
	LogoURL       string    `json:"logo_url" yaml:"logo_url" bson:"logo_url"`
	CoverImageURL string    `json:"cover_image_url" yaml:"cover_image_url" bson:"cover_image_url"`
	TimeSlots     []string  `json:"time_slots" yaml:"time_slots" bson:"time_slots"`
	Timezone      string    `json:"timezone" yaml:"timezone" bson:"timezone"`
	DepositPrice  string    `json:"deposit_price,omitempty" yaml:"deposit_price" bson:"deposit_price"`
	CreatedAt     time.Time `json:"created_at" yaml:"-" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-" bson:"updated_at"`
}

// BusinessProfile is the owner-editable part of a Business.
type BusinessProfile struct {
	BusinessName  string `json:"business_name" validate:"required,min=2,max=120"`
	Description   string `json:"description" validate:"max=2000"`
	LogoURL       string `json:"logo_url" validate:"omitempty,url,startswith=http"`
	CoverImageURL string `json:"cover_image_url" validate:"omitempty,url,startswith=http"`
}

// Location resolves the business timezone, falling back to UTC.
func (b *Business) Location() *time.Location {
	if b == nil {
		return time.UTC
	}
	return LoadLocation(b.Timezone)
}

// LoadLocation resolves an IANA zone name, falling back to UTC.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlotsFor returns the slots offered on date. Every day offers the same list.
func (b *Business) SlotsFor(date time.Time) []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.TimeSlots))
	copy(out, b.TimeSlots)
	return out
}
