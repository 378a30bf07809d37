package sqlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/sql/executor"
	"github.com/tuannm99/novacsv/server/httpapi"
)

const (
	queryEndpoint  = "/query"
	tablesEndpoint = "/tables"
	healthEndpoint = "/healthz"
)

// ServerError is an error reported by the server for a request.
type ServerError struct {
	Status int
	Code   string
	Msg    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("sqlclient: %s (%s, http %d)", e.Msg, e.Code, e.Status)
}

// Client talks to a novacsv HTTP server. It is safe for concurrent use.
type Client struct {
	client    *resty.Client
	serverUrl string
}

// New creates a client for baseURL such as http://127.0.0.1:8080. Numbers in
// results decode as json.Number so Int64 values keep their precision.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetJSONUnmarshaler(func(data []byte, v interface{}) error {
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			return dec.Decode(v)
		})
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{client: c, serverUrl: baseURL}
}

func (c *Client) URL() string { return c.serverUrl }

func (c *Client) Exec(sql string) (*executor.Result, error) {
	return c.ExecContext(context.Background(), sql)
}

func (c *Client) ExecContext(ctx context.Context, sql string) (*executor.Result, error) {
	var resp httpapi.ExecuteResponse
	r, err := c.client.R().
		SetContext(ctx).
		SetBody(httpapi.ExecuteRequest{SQL: sql}).
		SetResult(&resp).
		SetError(&resp).
		Post(queryEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "sqlclient: query")
	}
	if r.IsError() || resp.Error != "" {
		return nil, &ServerError{Status: r.StatusCode(), Code: resp.Code, Msg: resp.Error}
	}
	if resp.Result == nil {
		return nil, errors.New("sqlclient: empty result")
	}
	return resp.Result, nil
}

func (c *Client) Tables(ctx context.Context) ([]string, error) {
	var resp httpapi.TablesResponse
	var fail httpapi.ErrorResponse
	r, err := c.client.R().SetContext(ctx).SetResult(&resp).SetError(&fail).Get(tablesEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "sqlclient: list tables")
	}
	if r.IsError() {
		return nil, &ServerError{Status: r.StatusCode(), Code: fail.Code, Msg: fail.Error}
	}
	return resp.Tables, nil
}

func (c *Client) Describe(ctx context.Context, table string) (*httpapi.TableResponse, error) {
	var resp httpapi.TableResponse
	var fail httpapi.ErrorResponse
	r, err := c.client.R().
		SetContext(ctx).
		SetPathParam("name", table).
		SetResult(&resp).
		SetError(&fail).
		Get(tablesEndpoint + "/{name}")
	if err != nil {
		return nil, errors.Wrapf(err, "sqlclient: describe %s", table)
	}
	if r.IsError() {
		return nil, &ServerError{Status: r.StatusCode(), Code: fail.Code, Msg: fail.Error}
	}
	return &resp, nil
}

func (c *Client) Ping(ctx context.Context) error {
	r, err := c.client.R().SetContext(ctx).Get(healthEndpoint)
	if err != nil {
		return errors.Wrap(err, "sqlclient: ping")
	}
	if r.IsError() {
		return &ServerError{Status: r.StatusCode(), Code: "health", Msg: r.Status()}
	}
	return nil
}
