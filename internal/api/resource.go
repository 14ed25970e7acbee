package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/imgajeed76/gridsync/internal/cascade"
	"github.com/imgajeed76/gridsync/internal/fetch"
	"github.com/imgajeed76/gridsync/internal/record"
	"github.com/imgajeed76/gridsync/internal/viewstate"
)

// ErrNoEndpoint is returned for operations the resource has no endpoint for.
var ErrNoEndpoint = errors.New("api: endpoint not configured")

// OptionsEndpoint describes where a dimension's catalog lives and how its
// items are shaped.
type OptionsEndpoint struct {
	Path        string
	LabelField  string
	ParentField string
}

// ResourceSpec declares one table's endpoints.
type ResourceSpec struct {
	Endpoint       string
	DeleteEndpoint string
	Options        map[string]OptionsEndpoint
}

// Resource implements the fetch, options and delete contracts for one table.
type Resource struct {
	client *Client
	spec   ResourceSpec
	group  singleflight.Group
}

// Resource binds spec to the client.
func (c *Client) Resource(spec ResourceSpec) *Resource {
	return &Resource{client: c, spec: spec}
}

type pageBody struct {
	Data  []record.Record `json:"data"`
	Total int             `json:"total"`
}

// Fetch runs a paginated query. Identical concurrent queries share one
// round trip.
func (r *Resource) Fetch(ctx context.Context, req viewstate.Request) (fetch.Page[record.Record], error) {
	key := r.spec.Endpoint + "?" + req.Key()
	v, err, shared := r.group.Do(key, func() (any, error) {
		var body pageBody
		if err := r.client.do(ctx, http.MethodGet, r.spec.Endpoint, req.Values(), nil, &body); err != nil {
			return nil, err
		}
		return fetch.Page[record.Record]{Rows: body.Data, Total: body.Total}, nil
	})
	if err != nil {
		return fetch.Page[record.Record]{}, err
	}
	if shared {
		r.client.logger.Debug("fetch shared with in-flight request")
	}
	return v.(fetch.Page[record.Record]), nil
}

// Options returns the full catalog of dimension.
func (r *Resource) Options(ctx context.Context, dimension string) ([]cascade.Option, error) {
	ep, ok := r.spec.Options[dimension]
	if !ok || ep.Path == "" {
		return nil, fmt.Errorf("%w: options of %q", ErrNoEndpoint, dimension)
	}

	v, err, _ := r.group.Do("options:"+ep.Path, func() (any, error) {
		var items []record.Record
		if err := r.client.do(ctx, http.MethodGet, ep.Path, nil, nil, &items); err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return toOptions(v.([]record.Record), ep), nil
}

func toOptions(items []record.Record, ep OptionsEndpoint) []cascade.Option {
	label := ep.LabelField
	if label == "" {
		label = "name"
	}
	parent := ep.ParentField
	if parent == "" {
		parent = "parent_id"
	}
	out := make([]cascade.Option, 0, len(items))
	for _, it := range items {
		out = append(out, cascade.Option{
			ID:       it.String("id"),
			Label:    it.String(label),
			ParentID: it.String(parent),
		})
	}
	return out
}

type deleteBody struct {
	IDs []string `json:"ids"`
}

// DeleteMany deletes every id in one request.
func (r *Resource) DeleteMany(ctx context.Context, ids []string) error {
	if r.spec.DeleteEndpoint == "" {
		return fmt.Errorf("%w: delete", ErrNoEndpoint)
	}
	return r.client.do(ctx, http.MethodPost, r.spec.DeleteEndpoint, nil, deleteBody{IDs: ids}, nil)
}
