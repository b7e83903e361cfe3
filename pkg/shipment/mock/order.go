package mock

import (
	"context"
	"fmt"

	"github.com/tournevent/sendparcel/pkg/shipment"
)

// Order is a fixed test order.
type Order struct {
	Ref    string
	Weight float64
}

// Reference returns the order reference.
func (o *Order) Reference() string {
	if o.Ref == "" {
		return "order-1"
	}
	return o.Ref
}

// TotalWeight returns the order weight in kg.
func (o *Order) TotalWeight() float64 {
	if o.Weight == 0 {
		return 1.5
	}
	return o.Weight
}

// Parcels returns one standard parcel.
func (o *Order) Parcels() []shipment.Parcel {
	return []shipment.Parcel{
		{
			Length: 30, Width: 20, Height: 10,
			DimensionUnit: shipment.DimensionCM,
			Weight:        o.TotalWeight(),
			WeightUnit:    shipment.WeightKG,
		},
	}
}

// SenderAddress returns a fixed sender.
func (o *Order) SenderAddress() shipment.Address {
	return shipment.Address{
		Name:        "Sender",
		Line1:       "123 Main St",
		City:        "Toronto",
		PostalCode:  "M5V 1A1",
		CountryCode: "CA",
	}
}

// ReceiverAddress returns a fixed receiver.
func (o *Order) ReceiverAddress() shipment.Address {
	return shipment.Address{
		Name:        "Receiver",
		Line1:       "456 Oak Ave",
		City:        "Vancouver",
		PostalCode:  "V6B 2W2",
		CountryCode: "CA",
	}
}

// OrderResolver resolves every known id to a fixed Order.
type OrderResolver struct {
	// Missing ids resolve to an error matching shipment.ErrOrderNotFound
	// when NotFound is set.
	NotFound bool
}

// Resolve returns a fixed order for the id.
func (r *OrderResolver) Resolve(ctx context.Context, orderID string) (shipment.Order, error) {
	if r.NotFound {
		return nil, fmt.Errorf("%w: %s", shipment.ErrOrderNotFound, orderID)
	}
	return &Order{Ref: orderID}, nil
}
