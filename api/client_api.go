// Package api - Nicht-streamende API-Methoden des Clients.

package api

import (
	"context"
	"net/http"
)

// List lists the models available on the server.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var lr ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// Show returns the metadata of one model.
func (c *Client) Show(ctx context.Context, req *ShowRequest) (*ShowResponse, error) {
	var resp ShowResponse
	if err := c.do(ctx, http.MethodPost, "/api/show", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes a model from the server.
func (c *Client) Delete(ctx context.Context, req *DeleteRequest) error {
	return c.do(ctx, http.MethodDelete, "/api/delete", req, nil)
}

// History returns the most recent generation records.
func (c *Client) History(ctx context.Context) (*HistoryResponse, error) {
	var hr HistoryResponse
	if err := c.do(ctx, http.MethodGet, "/api/history", nil, &hr); err != nil {
		return nil, err
	}
	return &hr, nil
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var vr struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &vr); err != nil {
		return "", err
	}
	return vr.Version, nil
}

// Heartbeat checks that the server is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}
