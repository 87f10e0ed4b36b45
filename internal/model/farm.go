package model

import (
	"time"

	"github.com/sells-group/farm-seeder/internal/geo"
)

// Kind distinguishes seeded leads from vendors who have verified their farm.
type Kind string

const (
	KindLead     Kind = "lead"
	KindVerified Kind = "verified"
)

// Status tracks whether a vendor has claimed the farm record.
type Status string

const (
	StatusUnclaimed Status = "unclaimed"
	StatusClaimed   Status = "claimed"
)

// Contact holds the public contact details of a farm.
type Contact struct {
	Phone   string `json:"phone" bson:"phone"`
	Address string `json:"address" bson:"address"`
}

// FarmRecord is a farm as written to a sink.
type FarmRecord struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"type"`
	Status    Status    `json:"status"`
	Products  []string  `json:"products"`
	Contact   Contact   `json:"contact"`
	Location  geo.Point `json:"location"`
	Geohash   string    `json:"geohash"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewLeadRecord builds the unclaimed lead record for a geocoded lead.
// Products are copied so the record never aliases the input slice.
func NewLeadRecord(l Lead, loc geo.Point) *FarmRecord {
	products := make([]string, len(l.Products))
	copy(products, l.Products)

	return &FarmRecord{
		Name:     l.Name,
		Kind:     KindLead,
		Status:   StatusUnclaimed,
		Products: products,
		Contact: Contact{
			Phone:   l.Phone,
			Address: l.Address,
		},
		Location: loc,
		Geohash:  loc.Geohash(geo.GeohashPrecision),
	}
}
