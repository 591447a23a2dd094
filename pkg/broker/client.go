// Package broker provides a client for an NGSI v2 context broker. The
// service registers change subscriptions with the broker at startup so that
// entity updates arrive on the notification endpoint.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config represents context broker configuration
type Config struct {
	// Enabled turns on subscription registration at startup.
	Enabled bool `yaml:"enabled" env:"BROKER_ENABLED" default:"false"`
	// URL is the broker base URL, e.g. http://orion:1026.
	URL string `yaml:"url" env:"BROKER_URL" default:"http://localhost:1026"`
	// Service and ServicePath scope requests to a broker tenant.
	Service     string `yaml:"service" env:"BROKER_SERVICE" default:""`
	ServicePath string `yaml:"service_path" env:"BROKER_SERVICE_PATH" default:"/"`
	// NotifyURL is where the broker sends change notifications.
	NotifyURL string `yaml:"notify_url" env:"BROKER_NOTIFY_URL" default:""`
	// Timeout bounds every broker request.
	Timeout time.Duration `yaml:"timeout" env:"BROKER_TIMEOUT" default:"10s"`

	// Subscriptions to register at startup.
	Subscriptions []SubscriptionSpec `yaml:"subscriptions"`
}

// SubscriptionSpec describes one subscription to register
type SubscriptionSpec struct {
	Description string   `yaml:"description"`
	EntityType  string   `yaml:"entity_type"`
	IDPattern   string   `yaml:"id_pattern"`
	Attributes  []string `yaml:"attributes"`
	Throttling  int      `yaml:"throttling"`
}

// GetDefaultConfig returns a default broker configuration
func GetDefaultConfig() *Config {
	return &Config{
		Enabled:     false,
		URL:         "http://localhost:1026",
		ServicePath: "/",
		Timeout:     10 * time.Second,
	}
}

// Validate validates the broker configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("broker URL is required when broker is enabled")
	}
	if c.NotifyURL == "" {
		return fmt.Errorf("broker notify URL is required when broker is enabled")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("broker timeout must be positive")
	}
	for i, sub := range c.Subscriptions {
		if sub.EntityType == "" {
			return fmt.Errorf("subscription %d: entity type is required", i)
		}
	}
	return nil
}

// Client talks to an NGSI v2 context broker
type Client struct {
	baseURL     string
	service     string
	servicePath string
	httpClient  *http.Client
}

// NewClient creates a new broker client
func NewClient(config *Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(config.URL, "/"),
		service:     config.Service,
		servicePath: config.ServicePath,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Subscription is the broker-side representation of a subscription
type Subscription struct {
	ID           string        `json:"id,omitempty"`
	Description  string        `json:"description,omitempty"`
	Subject      *Subject      `json:"subject"`
	Notification *Notification `json:"notification"`
	Throttling   int           `json:"throttling,omitempty"`
	Status       string        `json:"status,omitempty"`
}

// Subject selects which entities and attributes trigger notifications
type Subject struct {
	Entities  []EntitySelector `json:"entities"`
	Condition *Condition       `json:"condition,omitempty"`
}

// EntitySelector matches entities by id pattern and type
type EntitySelector struct {
	IDPattern string `json:"idPattern,omitempty"`
	ID        string `json:"id,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Condition lists the attributes whose changes fire the subscription
type Condition struct {
	Attrs []string `json:"attrs,omitempty"`
}

// Notification describes where and what the broker delivers
type Notification struct {
	HTTP  *NotificationHTTP `json:"http"`
	Attrs []string          `json:"attrs,omitempty"`
}

// NotificationHTTP is the delivery endpoint
type NotificationHTTP struct {
	URL string `json:"url"`
}

// Version probes the broker and returns its reported version string
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build version request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("broker unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broker version probe returned status %d", resp.StatusCode)
	}

	var payload struct {
		Orion struct {
			Version string `json:"version"`
		} `json:"orion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode version response: %w", err)
	}

	return payload.Orion.Version, nil
}

// CreateSubscription registers a subscription and returns its broker-assigned
// ID (taken from the Location header).
func (c *Client) CreateSubscription(ctx context.Context, spec SubscriptionSpec, notifyURL string) (string, error) {
	idPattern := spec.IDPattern
	if idPattern == "" {
		idPattern = ".*"
	}

	sub := Subscription{
		Description: spec.Description,
		Subject: &Subject{
			Entities: []EntitySelector{{IDPattern: idPattern, Type: spec.EntityType}},
		},
		Notification: &Notification{
			HTTP: &NotificationHTTP{URL: notifyURL},
		},
		Throttling: spec.Throttling,
	}
	if len(spec.Attributes) > 0 {
		sub.Subject.Condition = &Condition{Attrs: spec.Attributes}
		sub.Notification.Attrs = spec.Attributes
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal subscription: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/subscriptions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build subscription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setServiceHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("broker unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("subscription create returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	// Location: /v2/subscriptions/<id>
	location := resp.Header.Get("Location")
	id := location[strings.LastIndex(location, "/")+1:]
	return id, nil
}

// ListSubscriptions returns the subscriptions registered with the broker
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/subscriptions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	c.setServiceHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subscription list returned status %d", resp.StatusCode)
	}

	var subs []Subscription
	if err := json.NewDecoder(resp.Body).Decode(&subs); err != nil {
		return nil, fmt.Errorf("failed to decode subscription list: %w", err)
	}

	return subs, nil
}

// DeleteSubscription removes a subscription by ID
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v2/subscriptions/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	c.setServiceHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("subscription delete returned status %d", resp.StatusCode)
	}

	return nil
}

// EnsureSubscriptions registers every configured subscription that does not
// already have an active counterpart notifying the same URL for the same
// entity type.
func (c *Client) EnsureSubscriptions(ctx context.Context, specs []SubscriptionSpec, notifyURL string) ([]string, error) {
	existing, err := c.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	created := make([]string, 0, len(specs))
	for _, spec := range specs {
		if hasSubscription(existing, spec.EntityType, notifyURL) {
			continue
		}
		id, err := c.CreateSubscription(ctx, spec, notifyURL)
		if err != nil {
			return created, fmt.Errorf("failed to create subscription for type %s: %w", spec.EntityType, err)
		}
		created = append(created, id)
	}

	return created, nil
}

func hasSubscription(subs []Subscription, entityType, notifyURL string) bool {
	for _, sub := range subs {
		if sub.Notification == nil || sub.Notification.HTTP == nil || sub.Notification.HTTP.URL != notifyURL {
			continue
		}
		if sub.Subject == nil {
			continue
		}
		for _, e := range sub.Subject.Entities {
			if e.Type == entityType {
				return true
			}
		}
	}
	return false
}

func (c *Client) setServiceHeaders(req *http.Request) {
	if c.service != "" {
		req.Header.Set("Fiware-Service", c.service)
	}
	if c.servicePath != "" {
		req.Header.Set("Fiware-ServicePath", c.servicePath)
	}
}
