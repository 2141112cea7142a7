// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package openfga implements authz.Client on the OpenFGA Go SDK.
package openfga

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	fgasdk "github.com/openfga/go-sdk"
	fgaclient "github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
	"github.com/poiesic/guarded/authz"
	"github.com/poiesic/guarded/core"
	"golang.org/x/time/rate"
)

// maxTuplesPerWrite mirrors the server's default limit for one write request.
const maxTuplesPerWrite = 100

// idempotentWrites makes re-registering an existing tuple and deleting a
// missing one succeed server-side.
var idempotentWrites = fgaclient.ClientWriteOptions{
	Conflict: fgaclient.ClientWriteConflictOptions{
		OnDuplicateWrites: fgaclient.CLIENT_WRITE_REQUEST_ON_DUPLICATE_WRITES_IGNORE,
		OnMissingDeletes:  fgaclient.CLIENT_WRITE_REQUEST_ON_MISSING_DELETES_IGNORE,
	},
}

// Client talks to an OpenFGA-compatible service.
type Client struct {
	cfg     *authz.Config
	sdk     *fgaclient.OpenFgaClient
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ authz.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger.With("component", "openfga-client")
		return nil
	}
}

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.http = hc
		return nil
	}
}

// NewClient validates cfg and returns a client.
func NewClient(cfg *authz.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = authz.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "openfga-client"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	sdkCfg := &fgaclient.ClientConfiguration{
		ApiUrl:               cfg.APIURL,
		StoreId:              cfg.StoreID,
		AuthorizationModelId: cfg.AuthorizationModelID,
		HTTPClient:           c.http,
		// Failures surface to the caller instead of being retried here
		RetryParams: &fgasdk.RetryParams{MaxRetry: 0, MinWaitInMs: 100},
	}
	if cfg.APIToken != "" {
		sdkCfg.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{ApiToken: cfg.APIToken},
		}
	}
	sdk, err := fgaclient.NewSdkClient(sdkCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}
	c.sdk = sdk
	return c, nil
}

// Check asks whether subject holds relation on object.
func (c *Client) Check(ctx context.Context, subject string, relation core.Relation, object string) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrAuthzUnavailable, err)
	}

	resp, err := c.sdk.Check(ctx).Body(fgaclient.ClientCheckRequest{
		User:     c.cfg.Subject(subject),
		Relation: string(relation),
		Object:   c.cfg.Object(object),
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrAuthzUnavailable, err)
	}
	return resp.GetAllowed(), nil
}

// WriteTuples registers tuples. Tuples that already exist are not an error.
func (c *Client) WriteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error {
	return c.write(ctx, tuples, false)
}

// DeleteTuples revokes tuples. Tuples that do not exist are not an error.
func (c *Client) DeleteTuples(ctx context.Context, tuples ...core.VisibilityTuple) error {
	return c.write(ctx, tuples, true)
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) write(ctx context.Context, tuples []core.VisibilityTuple, isDelete bool) error {
	for _, t := range tuples {
		if err := core.ValidateTuple(t); err != nil {
			return fmt.Errorf("%w: %w", core.ErrAuthzWrite, err)
		}
	}

	for start := 0; start < len(tuples); start += maxTuplesPerWrite {
		batch := tuples[start:min(start+maxTuplesPerWrite, len(tuples))]
		if err := c.writeBatch(ctx, batch, isDelete); err != nil {
			return err
		}
	}
	return nil
}

// writeBatch sends one transactional write request.
func (c *Client) writeBatch(ctx context.Context, batch []core.VisibilityTuple, isDelete bool) error {
	if err := c.wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrAuthzWrite, err)
	}

	var body fgaclient.ClientWriteRequest
	if isDelete {
		body.Deletes = make([]fgaclient.ClientTupleKeyWithoutCondition, len(batch))
		for i, t := range batch {
			body.Deletes[i] = fgaclient.ClientTupleKeyWithoutCondition{
				User:     c.cfg.Subject(t.Subject),
				Relation: string(t.Relation),
				Object:   c.cfg.Object(t.Object),
			}
		}
	} else {
		body.Writes = make([]fgaclient.ClientTupleKey, len(batch))
		for i, t := range batch {
			body.Writes[i] = fgaclient.ClientTupleKey{
				User:     c.cfg.Subject(t.Subject),
				Relation: string(t.Relation),
				Object:   c.cfg.Object(t.Object),
			}
		}
	}

	if _, err := c.sdk.Write(ctx).Body(body).Options(idempotentWrites).Execute(); err != nil {
		c.logger.Debug("write rejected", "tuples", len(batch), "delete", isDelete, "err", err)
		return fmt.Errorf("%w: %w", core.ErrAuthzWrite, err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
