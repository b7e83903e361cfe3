// Package shipment implements the shipment lifecycle: the guarded state
// machine, the flow orchestrating provider calls with transitions, and the
// provider abstraction carriers plug into.
package shipment

// Status represents the lifecycle state of a shipment.
type Status string

const (
	StatusNew            Status = "new"
	StatusCreated        Status = "created"
	StatusLabelReady     Status = "label_ready"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
	StatusReturned       Status = "returned"
)

// IsTerminal reports whether the status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusFailed, StatusReturned:
		return true
	}
	return false
}

// Shipment is the tracked entity representing one parcel's journey with one
// provider. Status only ever changes through Trigger; callers set the
// provider identifier fields around the transition as appropriate.
type Shipment struct {
	ID             string
	Status         Status
	Provider       string // provider slug
	ExternalID     string // provider's identifier, empty until creation succeeds
	TrackingNumber string
	LabelURL       string
	OrderReference string

	// Version is bumped by the repository on every save and used for
	// optimistic concurrency checks.
	Version int
}

// WeightUnit represents weight measurement unit.
type WeightUnit string

const (
	WeightKG WeightUnit = "kg"
	WeightLB WeightUnit = "lb"
)

// DimensionUnit represents dimension measurement unit.
type DimensionUnit string

const (
	DimensionCM DimensionUnit = "cm"
	DimensionIN DimensionUnit = "in"
)

// LabelFormat represents the format of shipping labels.
type LabelFormat string

const (
	LabelPDF LabelFormat = "pdf"
	LabelPNG LabelFormat = "png"
	LabelZPL LabelFormat = "zpl"
)

// Address represents a sender or receiver address.
type Address struct {
	Name         string
	Company      string
	Line1        string
	Line2        string
	City         string
	ProvinceCode string
	PostalCode   string
	CountryCode  string // ISO 3166-1 alpha-2, e.g., "CA", "PL"
	Phone        string
	Email        string
}

// Parcel represents a single parcel within an order.
type Parcel struct {
	Length        float64
	Width         float64
	Height        float64
	DimensionUnit DimensionUnit
	Weight        float64
	WeightUnit    WeightUnit
	Description   string
}
