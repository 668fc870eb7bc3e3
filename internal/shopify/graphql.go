package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/types"
)

// OwnerTypes are the metafield owner types enumerated by a metafield scan
var OwnerTypes = []string{
	"PRODUCT",
	"PRODUCTVARIANT",
	"COLLECTION",
	"CUSTOMER",
	"ORDER",
	"DRAFTORDER",
	"COMPANY",
	"LOCATION",
	"MARKET",
	"PAGE",
	"BLOG",
	"ARTICLE",
	"SHOP",
}

const metafieldDefinitionsQuery = `query MetafieldDefinitions($ownerType: MetafieldOwnerType!, $first: Int!, $after: String) {
  metafieldDefinitions(ownerType: $ownerType, first: $first, after: $after) {
    nodes { namespace key ownerType }
    pageInfo { hasNextPage endCursor }
  }
}`

const metaobjectDefinitionsQuery = `query MetaobjectDefinitions($first: Int!, $after: String) {
  metaobjectDefinitions(first: $first, after: $after) {
    nodes { type }
    pageInfo { hasNextPage endCursor }
  }
}`

const menusQuery = `query Menus($first: Int!, $after: String) {
  menus(first: $first, after: $after) {
    nodes { id handle title }
    pageInfo { hasNextPage endCursor }
  }
}`

// PageInfo is the relay cursor block of a connection
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type connection[T any] struct {
	Nodes    []T      `json:"nodes"`
	PageInfo PageInfo `json:"pageInfo"`
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// GraphQLError carries the messages of a failed GraphQL call
type GraphQLError struct {
	Messages  []string
	Throttled bool
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// query runs one GraphQL operation and decodes data into out.
// THROTTLED responses arrive as 200 with an error payload and are retried with backoff.
func (c *Client) query(ctx context.Context, q string, vars map[string]interface{}, out interface{}) error {
	target := c.adminURL("graphql.json")
	payload, err := json.Marshal(graphQLRequest{Query: q, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := c.doWithRetry(ctx, http.MethodPost, target, payload, c.authHeaders(), c.maxAttempts, c.baseDelay)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			snippet := readSnippet(resp)
			_ = resp.Body.Close()
			return scanerrors.NewFetchError(target, fmt.Errorf("graphql request failed: %s", snippet)).
				WithStatus(resp.StatusCode)
		}

		var body graphQLResponse
		err = json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()
		if err != nil {
			return scanerrors.NewFetchError(target, fmt.Errorf("failed to decode graphql response: %w", err))
		}

		if len(body.Errors) > 0 {
			gqlErr := &GraphQLError{}
			for _, e := range body.Errors {
				gqlErr.Messages = append(gqlErr.Messages, e.Message)
				if e.Extensions.Code == "THROTTLED" {
					gqlErr.Throttled = true
				}
			}
			if !gqlErr.Throttled {
				return gqlErr
			}
			lastErr = gqlErr
			delay := backoff(c.baseDelay, attempt)
			c.logger.Debug("graphql throttled, waiting", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if err := json.Unmarshal(body.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
		return nil
	}

	return scanerrors.NewFetchError(target, fmt.Errorf("%w: %v", scanerrors.ErrMaxRetries, lastErr)).
		WithAttempts(c.maxAttempts)
}

// paginate follows a connection named field until hasNextPage is false or limit nodes were read
func paginate[T any](ctx context.Context, c *Client, q, field string, vars map[string]interface{}, limit int) ([]T, error) {
	var out []T
	var after interface{}

	for {
		pageVars := map[string]interface{}{"first": c.pageSize, "after": after}
		for k, v := range vars {
			pageVars[k] = v
		}

		var data map[string]connection[T]
		if err := c.query(ctx, q, pageVars, &data); err != nil {
			return out, err
		}

		conn := data[field]
		out = append(out, conn.Nodes...)

		if limit > 0 && len(out) >= limit {
			if len(out) > limit || conn.PageInfo.HasNextPage {
				c.logger.Warn("pagination ceiling reached", zap.String("connection", field), zap.Int("limit", limit))
			}
			return out[:limit], nil
		}
		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == "" {
			return out, nil
		}
		after = conn.PageInfo.EndCursor
	}
}

// MetafieldDefinitions lists the definitions of one owner type
func (c *Client) MetafieldDefinitions(ctx context.Context, ownerType string, limit int) ([]types.MetafieldDefinition, error) {
	return paginate[types.MetafieldDefinition](ctx, c, metafieldDefinitionsQuery, "metafieldDefinitions",
		map[string]interface{}{"ownerType": ownerType}, limit)
}

// MetaobjectTypes lists the type of every metaobject definition
func (c *Client) MetaobjectTypes(ctx context.Context, limit int) ([]string, error) {
	type node struct {
		Type string `json:"type"`
	}
	nodes, err := paginate[node](ctx, c, metaobjectDefinitionsQuery, "metaobjectDefinitions", nil, limit)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Type)
	}
	return out, err
}

// Menus lists the store's navigation menus
func (c *Client) Menus(ctx context.Context, limit int) ([]types.Menu, error) {
	return paginate[types.Menu](ctx, c, menusQuery, "menus", nil, limit)
}
