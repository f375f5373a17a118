package hst

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
)

// Client talks to the container REST endpoint.
type Client struct {
	baseURL   string
	http      *http.Client
	user      string
	channelID string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithUser sends user as the acting CMS user.
func WithUser(user string) ClientOption {
	return func(cl *Client) { cl.user = user }
}

// WithChannel scopes requests to a channel.
func WithChannel(id string) ClientOption {
	return func(cl *Client) { cl.channelID = id }
}

// NewClient creates a client for the endpoint at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateContainer persists the order of container id.
func (c *Client) UpdateContainer(ctx context.Context, id string, rep pagestructure.Representation) (pagestructure.Representation, error) {
	var out ContainerRecord
	if err := c.do(ctx, http.MethodPut, "/_rp/"+url.PathEscape(id), rep, &out); err != nil {
		return pagestructure.Representation{}, err
	}
	return out.Representation(), nil
}

// GetContainer fetches container id.
func (c *Client) GetContainer(ctx context.Context, id string) (ContainerRecord, error) {
	var out ContainerRecord
	err := c.do(ctx, http.MethodGet, "/_rp/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(HeaderUser, c.user)
	}
	if c.channelID != "" {
		req.Header.Set(HeaderChannelID, c.channelID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hst: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Code, apiErr.Message = body.Code, body.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hst: decoding response: %w", err)
	}
	return nil
}

// Representation converts a stored container to its persistable form.
func (c ContainerRecord) Representation() pagestructure.Representation {
	return pagestructure.Representation{
		ID:           c.ID,
		Label:        c.Label,
		XType:        c.XType,
		LastModified: c.LastModified,
		Children:     c.ChildIDs(),
	}
}

// LocalPersister persists container order straight to a store, for an
// editor running in the same process as the preview host.
type LocalPersister struct {
	Store Store
	User  string
}

// UpdateContainer implements the same contract as Client.UpdateContainer.
func (p LocalPersister) UpdateContainer(ctx context.Context, id string, rep pagestructure.Representation) (pagestructure.Representation, error) {
	rep.ID = id
	out, err := p.Store.UpdateContainer(ctx, rep, p.User)
	if err != nil {
		return pagestructure.Representation{}, err
	}
	return out.Representation(), nil
}
