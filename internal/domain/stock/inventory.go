package stock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// ErrDrugNotFound is returned when a prescribed drug no longer exists in the
// formulary. Reported to the caller, never retried.
var ErrDrugNotFound = errors.New("drug not found in formulary")

// StockLevel is the inventory service's answer for one drug.
type StockLevel struct {
	Available        bool       `json:"available"`
	OnHand           float64    `json:"on_hand"`
	EstimatedRestock *time.Time `json:"estimated_restock,omitempty"`
}

// Alternative is a substitutable drug of equivalent therapeutic class.
type Alternative struct {
	DrugID   uuid.UUID `json:"drug_id"`
	DrugName string    `json:"drug_name"`
}

// Inventory is the outbound collaborator holding on-hand levels and the
// therapeutic-class substitution index.
type Inventory interface {
	CheckStock(ctx context.Context, drugID uuid.UUID, quantity float64) (*StockLevel, error)
	// FindAlternative returns nil when no substitutable drug exists.
	FindAlternative(ctx context.Context, drugID uuid.UUID) (*Alternative, error)
}

// InventoryClient is the HTTP implementation of Inventory. No automatic
// retries: a failed stock check surfaces to the caller for manual resolution.
type InventoryClient struct {
	client *resty.Client
}

func NewInventoryClient(baseURL string, timeout time.Duration) *InventoryClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &InventoryClient{client: client}
}

func (c *InventoryClient) CheckStock(ctx context.Context, drugID uuid.UUID, quantity float64) (*StockLevel, error) {
	var level StockLevel
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("qty", fmt.Sprintf("%g", quantity)).
		SetResult(&level).
		Get("/stock/" + drugID.String())
	if err != nil {
		return nil, fmt.Errorf("inventory check stock: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("drug %s: %w", drugID, ErrDrugNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inventory check stock: status %d", resp.StatusCode())
	}
	return &level, nil
}

func (c *InventoryClient) FindAlternative(ctx context.Context, drugID uuid.UUID) (*Alternative, error) {
	var alt Alternative
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&alt).
		Get("/alternatives/" + drugID.String())
	if err != nil {
		return nil, fmt.Errorf("inventory find alternative: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inventory find alternative: status %d", resp.StatusCode())
	}
	return &alt, nil
}
