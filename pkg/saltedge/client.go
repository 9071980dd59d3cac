package saltedge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the v6 API root
const DefaultBaseURL = "https://www.saltedge.com/api/v6"

const (
	maxLookupPages = 10
	lookupPageSize = 100
	lookupBackoff  = 200 * time.Millisecond
)

// ConsentScopes are requested for every connect session
var ConsentScopes = []string{"account_details", "transactions"}

// CustomerStore persists the identifier to customer id mapping between invocations
type CustomerStore interface {
	LookupCustomer(ctx context.Context, identifier string) (string, bool, error)
	SaveCustomer(ctx context.Context, identifier, customerID string) error
}

// Config holds the client settings
type Config struct {
	BaseURL string
	AppID   string
	Secret  string
	// ReturnTo is where the connect session redirects on success
	ReturnTo   string
	HTTPClient *http.Client
	// Customers is optional
	Customers CustomerStore
	Logger    *zap.Logger
}

// Client calls the aggregator API
type Client struct {
	baseURL    string
	appID      string
	secret     string
	returnTo   string
	httpClient *http.Client
	customers  CustomerStore
	log        *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client from cfg
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		appID:      cfg.AppID,
		secret:     cfg.Secret,
		returnTo:   cfg.ReturnTo,
		httpClient: httpClient,
		customers:  cfg.Customers,
		log:        log,
		sleep:      sleepContext,
	}
}

// CustomerID is an id the API may send as a JSON string or number
type CustomerID string

// UnmarshalJSON implements json.Unmarshaler
func (id *CustomerID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = CustomerID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("customer id: %w", err)
	}
	*id = CustomerID(n.String())
	return nil
}

type customer struct {
	ID         CustomerID `json:"id"`
	CustomerID CustomerID `json:"customer_id"`
	Identifier string     `json:"identifier"`
}

func (c customer) id() string {
	if c.CustomerID != "" {
		return string(c.CustomerID)
	}
	return string(c.ID)
}

type listMeta struct {
	NextID CustomerID `json:"next_id"`
}

// ResolveOrCreateCustomer returns the customer id of identifier, creating the customer when needed.
// Calling it twice with the same identifier yields the same id.
func (c *Client) ResolveOrCreateCustomer(ctx context.Context, identifier string) (string, error) {
	if identifier == "" {
		return "", errors.New("customer identifier is required")
	}

	if c.customers != nil {
		id, found, err := c.customers.LookupCustomer(ctx, identifier)
		if err != nil {
			c.log.Warn("Customer mapping lookup failed", zap.String("identifier", identifier), zap.Error(err))
		} else if found {
			return id, nil
		}
	}

	id, err := c.CreateCustomer(ctx, identifier)
	if err != nil {
		if !IsDuplicateCustomer(err) {
			return "", err
		}

		c.log.Info("Customer already exists, looking it up", zap.String("identifier", identifier))
		id, err = c.FindCustomer(ctx, identifier)
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", fmt.Errorf("customer %s not found after duplicate error", identifier)
		}
	}

	if c.customers != nil {
		if err := c.customers.SaveCustomer(ctx, identifier, id); err != nil {
			c.log.Warn("Failed to save customer mapping", zap.String("identifier", identifier), zap.Error(err))
		}
	}

	return id, nil
}

// CreateCustomer creates a customer record for identifier
func (c *Client) CreateCustomer(ctx context.Context, identifier string) (string, error) {
	var created customer
	err := c.do(ctx, http.MethodPost, "/customers", nil, map[string]string{"identifier": identifier}, &created, nil)
	if err != nil {
		return "", err
	}
	if created.id() == "" {
		return "", errors.New("saltedge: customer created without an id")
	}
	return created.id(), nil
}

// FindCustomer looks an existing customer up by exact identifier, returning "" when absent.
// A filtered search is tried first, then the customer list is paged through.
func (c *Client) FindCustomer(ctx context.Context, identifier string) (string, error) {
	var matches []customer
	query := url.Values{"identifier": []string{identifier}}
	if err := c.do(ctx, http.MethodGet, "/customers", query, nil, &matches, nil); err != nil {
		c.log.Warn("Direct customer search failed", zap.String("identifier", identifier), zap.Error(err))
	} else if id := exactMatch(matches, identifier); id != "" {
		return id, nil
	}

	fromID := ""
	for attempt := 1; attempt <= maxLookupPages; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, lookupBackoff*time.Duration(attempt-1)); err != nil {
				return "", err
			}
		}

		query := url.Values{"per_page": []string{strconv.Itoa(lookupPageSize)}}
		if fromID != "" {
			query.Set("from_id", fromID)
		}

		var page []customer
		var meta listMeta
		if err := c.do(ctx, http.MethodGet, "/customers", query, nil, &page, &meta); err != nil {
			c.log.Warn("Customer page request failed",
				zap.Int("attempt", attempt),
				zap.String("fromId", fromID),
				zap.Error(err))
			continue
		}

		if id := exactMatch(page, identifier); id != "" {
			return id, nil
		}
		if meta.NextID == "" {
			return "", nil
		}
		fromID = string(meta.NextID)
	}

	return "", nil
}

func exactMatch(customers []customer, identifier string) string {
	for _, cu := range customers {
		if cu.Identifier == identifier && cu.id() != "" {
			return cu.id()
		}
	}
	return ""
}

// ConnectRequest describes a connect session to start
type ConnectRequest struct {
	Identifier   string
	CountryCode  string
	ProviderCode string
}

type connectPayload struct {
	CustomerID  string           `json:"customer_id"`
	Consent     connectConsent   `json:"consent"`
	Attempt     connectAttempt   `json:"attempt"`
	CountryCode string           `json:"country_code,omitempty"`
	Provider    *connectProvider `json:"provider,omitempty"`
}

type connectConsent struct {
	Scopes []string `json:"scopes"`
}

type connectAttempt struct {
	ReturnTo string `json:"return_to"`
}

type connectProvider struct {
	Code string `json:"code"`
}

// StartConnection resolves the customer and opens a connect session, returning its URL
func (c *Client) StartConnection(ctx context.Context, req ConnectRequest) (string, error) {
	customerID, err := c.ResolveOrCreateCustomer(ctx, req.Identifier)
	if err != nil {
		return "", err
	}

	payload := connectPayload{
		CustomerID:  customerID,
		Consent:     connectConsent{Scopes: ConsentScopes},
		Attempt:     connectAttempt{ReturnTo: c.returnTo},
		CountryCode: req.CountryCode,
	}
	if req.ProviderCode != "" {
		payload.Provider = &connectProvider{Code: req.ProviderCode}
	}

	var session struct {
		ConnectURL string `json:"connect_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/connections/connect", nil, payload, &session, nil); err != nil {
		return "", err
	}
	if session.ConnectURL == "" {
		return "", errors.New("saltedge: connect session without a url")
	}
	return session.ConnectURL, nil
}

// do sends one request wrapped in the data envelope and decodes data (and meta) from the answer
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, data, meta interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(map[string]interface{}{"data": payload})
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("App-id", c.appID)
	req.Header.Set("Secret", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("saltedge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, raw)
	}

	if data == nil && meta == nil {
		return nil
	}
	envelope := struct {
		Data interface{} `json:"data"`
		Meta interface{} `json:"meta"`
	}{Data: data, Meta: meta}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
