package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// SyncResult reports the outcome of one platform update.
type SyncResult struct {
	Platform   string    `json:"platform"`
	ProductRef string    `json:"product_ref"`
	SyncedAt   time.Time `json:"synced_at"`
}

// PlatformAdapter pushes a product's sellable quantity to one external sales
// platform. Implementations must be safe for concurrent use.
type PlatformAdapter interface {
	Name() string
	UpdateInventory(ctx context.Context, productRef string, quantity int) (SyncResult, error)
}

// HTTPAdapter is a generic JSON-over-HTTP platform adapter. Every request is
// bounded by the client timeout so a slow platform cannot stall sync jobs.
type HTTPAdapter struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logger.Logger
}

// NewHTTPAdapter creates an HTTP platform adapter
func NewHTTPAdapter(name, baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *HTTPAdapter {
	return &HTTPAdapter{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  log.WithComponent("platform-" + name),
	}
}

// Name returns the platform name.
func (a *HTTPAdapter) Name() string {
	return a.name
}

type updateRequest struct {
	ProductRef string `json:"product_ref"`
	Quantity   int    `json:"quantity"`
}

// UpdateInventory pushes one quantity update. Non-2xx responses and transport
// failures surface as EXTERNAL_SERVICE errors.
func (a *HTTPAdapter) UpdateInventory(ctx context.Context, productRef string, quantity int) (SyncResult, error) {
	body, err := json.Marshal(updateRequest{ProductRef: productRef, Quantity: quantity})
	if err != nil {
		return SyncResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		a.baseURL+"/inventory/"+productRef, bytes.NewReader(body))
	if err != nil {
		return SyncResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return SyncResult{}, errors.ExternalService(a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SyncResult{}, errors.ExternalService(a.name,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return SyncResult{
		Platform:   a.name,
		ProductRef: productRef,
		SyncedAt:   time.Now().UTC(),
	}, nil
}
