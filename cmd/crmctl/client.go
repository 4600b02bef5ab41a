package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/tenancy"
)

type crmClient struct {
	baseURL   string
	namespace string
	user      string
	http      *http.Client
}

func newClient() *crmClient {
	return &crmClient{
		baseURL:   serverURL,
		namespace: resolvedNamespace(),
		user:      resolvedUser(),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// getJSON performs a GET request and decodes the response.
func (c *crmClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

// postJSON performs a POST request with a JSON body and decodes the response.
func (c *crmClient) postJSON(path string, body any, v any) error {
	return c.do(http.MethodPost, path, body, v)
}

// patchJSON performs a PATCH request with a JSON body and decodes the response.
func (c *crmClient) patchJSON(path string, body any, v any) error {
	return c.do(http.MethodPatch, path, body, v)
}

// do sends a request with the tenant and user headers. A 422 carries a
// blocked transition result and is decoded like a success.
func (c *crmClient) do(method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.namespace != "" {
		req.Header.Set(tenancy.TenantHeader, c.namespace)
	}
	if c.user != "" {
		req.Header.Set(tenancy.UserHeader, c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnprocessableEntity {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}
