package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"bnbconcierge/internal/entities"
)

// CiaoBookingClient resolves a guest phone number against the
// CiaoBooking API. It implements interfaces.BookingResolver.
type CiaoBookingClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCiaoBookingClient(baseURL, apiKey string, timeout time.Duration) *CiaoBookingClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CiaoBookingClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type ciaoBookingResponse struct {
	Booking *struct {
		ID            string `json:"id"`
		PropertyID    string `json:"property_id"`
		GuestLastName string `json:"guest_last_name"`
		Language      string `json:"language"`
		CheckIn       string `json:"check_in"`
		CheckOut      string `json:"check_out"`
	} `json:"booking"`
}

// Resolve looks up the reservation for an identifying signal. An empty
// signal short-circuits to nil without calling the provider; "not found"
// is nil too. Errors are returned for the caller to downgrade.
func (c *CiaoBookingClient) Resolve(ctx context.Context, signal string) (*entities.GuestContext, error) {
	signal = entities.NormalizeSignal(signal)
	if signal == "" {
		return nil, nil
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("ciaobooking base URL not configured")
	}

	reqURL := fmt.Sprintf("%s/api/bookings?phone=%s", c.baseURL, url.QueryEscape(signal))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ciaobooking: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ciaobooking returned status %d", resp.StatusCode)
	}

	var data ciaoBookingResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding booking: %w", err)
	}
	if data.Booking == nil || data.Booking.ID == "" {
		return nil, nil
	}

	return &entities.GuestContext{
		BookingID:     data.Booking.ID,
		PropertyID:    data.Booking.PropertyID,
		GuestLastName: data.Booking.GuestLastName,
		GuestLanguage: data.Booking.Language,
		CheckIn:       data.Booking.CheckIn,
		CheckOut:      data.Booking.CheckOut,
	}, nil
}
