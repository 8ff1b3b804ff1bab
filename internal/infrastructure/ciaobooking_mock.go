package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"bnbconcierge/internal/entities"
)

// MockBookingProvider is the fixture-backed stand-in for CiaoBooking.
// It applies the same normalized-phone matching rule as the real client
// so the two are interchangeable in tests and local runs.
type MockBookingProvider struct {
	bookings []mockBooking
}

type mockBooking struct {
	PhoneE164     string `json:"phone_e164"`
	BookingID     string `json:"booking_id"`
	PropertyID    string `json:"property_id"`
	GuestLastName string `json:"guest_last_name"`
	GuestLanguage string `json:"guest_language"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
}

type mockDataset struct {
	Bookings []mockBooking `json:"bookings"`
}

// NewMockBookingProvider loads the fixed dataset from path. A missing
// file yields an empty provider (every lookup resolves to nil), so the
// app still runs without fixtures.
func NewMockBookingProvider(path string) (*MockBookingProvider, error) {
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &MockBookingProvider{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mock dataset: %w", err)
	}
	var ds mockDataset
	if err := json.Unmarshal(blob, &ds); err != nil {
		return nil, fmt.Errorf("parse mock dataset: %w", err)
	}
	return &MockBookingProvider{bookings: ds.Bookings}, nil
}

// NewMockBookingProviderFromData builds a provider from in-memory
// fixtures, for tests.
func NewMockBookingProviderFromData(blob []byte) (*MockBookingProvider, error) {
	var ds mockDataset
	if err := json.Unmarshal(blob, &ds); err != nil {
		return nil, fmt.Errorf("parse mock dataset: %w", err)
	}
	return &MockBookingProvider{bookings: ds.Bookings}, nil
}

func (m *MockBookingProvider) Resolve(ctx context.Context, signal string) (*entities.GuestContext, error) {
	signal = entities.NormalizeSignal(signal)
	if signal == "" {
		return nil, nil
	}
	for _, b := range m.bookings {
		if entities.NormalizeSignal(b.PhoneE164) == signal {
			return &entities.GuestContext{
				BookingID:     b.BookingID,
				PropertyID:    b.PropertyID,
				GuestLastName: b.GuestLastName,
				GuestLanguage: b.GuestLanguage,
				CheckIn:       b.CheckIn,
				CheckOut:      b.CheckOut,
			}, nil
		}
	}
	return nil, nil
}
