package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medication-safety-cds/internal/domain"
)

// DrugReferenceClient handles interactions with a remote drug knowledge base REST API
type DrugReferenceClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	retryCount int
}

type therapeuticClassResponse struct {
	DrugID           string `json:"drug_id"`
	TherapeuticClass string `json:"therapeutic_class"`
}

// NewDrugReferenceClient creates a new drug reference API client
func NewDrugReferenceClient(config domain.ReferenceAPIConfig) *DrugReferenceClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	return &DrugReferenceClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		retryCount: config.RetryCount,
	}
}

// LookupDrug implements domain.ReferenceProvider
func (c *DrugReferenceClient) LookupDrug(ctx context.Context, drugID string) (*domain.DrugRecord, error) {
	drugID = strings.TrimSpace(drugID)
	if drugID == "" {
		return nil, fmt.Errorf("drug id cannot be empty: %w", domain.ErrInvalidInput)
	}

	var record domain.DrugRecord
	if err := c.getJSON(ctx, "/drugs/"+url.PathEscape(drugID), nil, &record); err != nil {
		return nil, fmt.Errorf("drug %s: %w", drugID, err)
	}
	return &record, nil
}

// LookupInteraction implements domain.ReferenceProvider
func (c *DrugReferenceClient) LookupInteraction(ctx context.Context, drugA, drugB string) (*domain.InteractionDescriptor, error) {
	params := url.Values{}
	params.Set("drug_a", strings.TrimSpace(drugA))
	params.Set("drug_b", strings.TrimSpace(drugB))

	var descriptor domain.InteractionDescriptor
	if err := c.getJSON(ctx, "/interactions", params, &descriptor); err != nil {
		return nil, fmt.Errorf("interaction %s/%s: %w", drugA, drugB, err)
	}
	severity, err := domain.ParseSeverity(string(descriptor.Severity))
	if err != nil {
		return nil, fmt.Errorf("interaction %s/%s: %w", drugA, drugB, err)
	}
	descriptor.Severity = severity
	return &descriptor, nil
}

// LookupTherapeuticClass implements domain.ReferenceProvider
func (c *DrugReferenceClient) LookupTherapeuticClass(ctx context.Context, drugID string) (string, error) {
	var resp therapeuticClassResponse
	if err := c.getJSON(ctx, "/drugs/"+url.PathEscape(strings.TrimSpace(drugID))+"/class", nil, &resp); err != nil {
		return "", fmt.Errorf("class of %s: %w", drugID, err)
	}
	if resp.TherapeuticClass == "" {
		return "", fmt.Errorf("class of %s: %w", drugID, domain.ErrNotFound)
	}
	return resp.TherapeuticClass, nil
}

// Ping checks that the knowledge base answers its health endpoint
func (c *DrugReferenceClient) Ping(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil, nil)
}

func (c *DrugReferenceClient) getJSON(ctx context.Context, path string, params url.Values, dst interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.doGet(ctx, path, params, dst)
		if lastErr == nil || !domain.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *DrugReferenceClient) doGet(ctx context.Context, path string, params url.Values, dst interface{}) error {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("request failed: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("knowledge base returned %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("knowledge base returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
