package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/erp/shopsync/internal/domain/integration"
)

// Shop probes connectivity and returns the store's basic settings
func (c *Client) Shop(ctx context.Context) (*integration.ShopInfo, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/shop.json"})
	if err != nil {
		return nil, err
	}
	shop := gjson.GetBytes(resp.body, "shop")
	if !shop.IsObject() {
		return nil, fmt.Errorf("shopify: response has no %q object", "shop")
	}
	domain := shop.Get("myshopify_domain").String()
	if domain == "" {
		domain = shop.Get("domain").String()
	}
	return &integration.ShopInfo{
		Name:     shop.Get("name").String(),
		Domain:   domain,
		Currency: shop.Get("currency").String(),
	}, nil
}

// Locations lists inventory locations
func (c *Client) Locations(ctx context.Context) ([]integration.Location, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/locations.json"})
	if err != nil {
		return nil, err
	}
	var out []integration.Location
	gjson.GetBytes(resp.body, "locations").ForEach(func(_, v gjson.Result) bool {
		out = append(out, integration.Location{
			ID:     v.Get("id").String(),
			Name:   v.Get("name").String(),
			Active: v.Get("active").Bool(),
		})
		return true
	})
	return out, nil
}

// Webhooks lists the registered webhook subscriptions
func (c *Client) Webhooks(ctx context.Context) ([]integration.RemoteWebhook, error) {
	query := url.Values{"limit": {fmt.Sprint(maxPageSize)}}
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/webhooks.json", query: query})
	if err != nil {
		return nil, err
	}
	var out []integration.RemoteWebhook
	gjson.GetBytes(resp.body, "webhooks").ForEach(func(_, v gjson.Result) bool {
		out = append(out, toRemoteWebhook(v))
		return true
	})
	return out, nil
}

// CreateWebhook subscribes address to topic with JSON delivery
func (c *Client) CreateWebhook(ctx context.Context, topic integration.WebhookTopic, address string) (*integration.RemoteWebhook, error) {
	if !topic.IsValid() {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnknownWebhookTopic, topic)
	}
	if !strings.HasPrefix(address, "https://") && !strings.HasPrefix(address, "http://") {
		return nil, fmt.Errorf("%w: webhook address must be an absolute URL", integration.ErrValidation)
	}

	body := []byte(`{}`)
	var err error
	body, err = sjson.SetBytes(body, "webhook.topic", topic.String())
	if err == nil {
		body, err = sjson.SetBytes(body, "webhook.address", address)
	}
	if err == nil {
		body, err = sjson.SetBytes(body, "webhook.format", "json")
	}
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to encode webhook: %w", err)
	}

	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/webhooks.json", body: body})
	if err != nil {
		return nil, err
	}
	wh := gjson.GetBytes(resp.body, "webhook")
	if !wh.IsObject() {
		return nil, fmt.Errorf("shopify: response has no %q object", "webhook")
	}
	out := toRemoteWebhook(wh)
	return &out, nil
}

// DeleteWebhook removes a subscription; a missing one is not an error
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, path: "/webhooks/" + url.PathEscape(id) + ".json"})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func toRemoteWebhook(v gjson.Result) integration.RemoteWebhook {
	return integration.RemoteWebhook{
		ID:      v.Get("id").String(),
		Topic:   integration.WebhookTopic(v.Get("topic").String()),
		Address: v.Get("address").String(),
	}
}
