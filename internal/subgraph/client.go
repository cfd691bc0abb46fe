// Package subgraph queries the Gamma subgraph for oTokens.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/gamma-ops/internal/config"
	"github.com/smartdevs17/gamma-ops/internal/metrics"
	"github.com/smartdevs17/gamma-ops/pkg/utils"
)

const defaultPageSize = 500

// Otoken is an oToken as indexed by the subgraph
type Otoken struct {
	ID              string `json:"id"`
	Underlying      string `json:"underlying"`
	Strike          string `json:"strike"`
	Collateral      string `json:"collateral"`
	IsPut           bool   `json:"is_put"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
}

// Touches reports whether asset is the underlying, strike or collateral of o
func (o Otoken) Touches(asset string) bool {
	return strings.EqualFold(o.Underlying, asset) ||
		strings.EqualFold(o.Strike, asset) ||
		strings.EqualFold(o.Collateral, asset)
}

// Client is a GraphQL client for the Gamma subgraph
type Client struct {
	url        string
	pageSize   int
	httpClient *http.Client
	metrics    *metrics.PrometheusMetrics
	logger     *logrus.Entry
}

// NewClient creates a subgraph client
func NewClient(cfg *config.SubgraphConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.First
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = defaultPageSize
	}
	return &Client{
		url:        cfg.URL,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.ComponentLogger("subgraph"),
	}
}

// SetMetrics attaches prometheus metrics
func (c *Client) SetMetrics(m *metrics.PrometheusMetrics) {
	c.metrics = m
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// Query posts a GraphQL query and decodes its data into out. GraphQL errors are returned as an error.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) (err error) {
	defer func() {
		if c.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			c.metrics.RecordSubgraphRequest(status)
		}
	}()

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal subgraph query", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to create subgraph request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Subgraph request failed", err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Failed to read subgraph response", err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return utils.NewAppError(utils.ErrCodeExternal, "Subgraph returned non-success status",
			fmt.Sprintf("status: %d, body: %.256s", resp.StatusCode, respBody))
	}

	var gr graphqlResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Failed to decode subgraph response", err.Error())
	}
	if len(gr.Errors) > 0 {
		return utils.NewAppError(utils.ErrCodeExternal, "Subgraph query failed", gr.Errors[0].Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Failed to decode subgraph data", err.Error())
	}
	return nil
}

const expiredOtokensQuery = `query ExpiredOtokens($first: Int!, $now: BigInt!, $lastID: ID!) {
  otokens(
    first: $first
    orderBy: id
    orderDirection: asc
    where: { expiryTimestamp_lt: $now, id_gt: $lastID }
  ) {
    id
    strikeAsset { id }
    underlyingAsset { id }
    collateralAsset { id }
    isPut
    expiryTimestamp
  }
}`

type assetRef struct {
	ID string `json:"id"`
}

type otokenRow struct {
	ID              string   `json:"id"`
	StrikeAsset     assetRef `json:"strikeAsset"`
	UnderlyingAsset assetRef `json:"underlyingAsset"`
	CollateralAsset assetRef `json:"collateralAsset"`
	IsPut           bool     `json:"isPut"`
	ExpiryTimestamp bigInt   `json:"expiryTimestamp"`
}

// bigInt decodes subgraph BigInt values, which arrive as strings
type bigInt int64

func (b *bigInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid BigInt %s: %w", data, err)
	}
	*b = bigInt(v)
	return nil
}

// ExpiredOtokens returns every oToken that expired before now, paging by id
func (c *Client) ExpiredOtokens(ctx context.Context, now time.Time) ([]Otoken, error) {
	var (
		out    []Otoken
		lastID string
	)
	for {
		var page struct {
			Otokens []otokenRow `json:"otokens"`
		}
		err := c.Query(ctx, expiredOtokensQuery, map[string]any{
			"first":  c.pageSize,
			"now":    strconv.FormatInt(now.Unix(), 10),
			"lastID": lastID,
		}, &page)
		if err != nil {
			return nil, err
		}

		for _, row := range page.Otokens {
			out = append(out, Otoken{
				ID:              row.ID,
				Underlying:      row.UnderlyingAsset.ID,
				Strike:          row.StrikeAsset.ID,
				Collateral:      row.CollateralAsset.ID,
				IsPut:           row.IsPut,
				ExpiryTimestamp: int64(row.ExpiryTimestamp),
			})
		}
		if len(page.Otokens) < c.pageSize {
			break
		}
		lastID = page.Otokens[len(page.Otokens)-1].ID
	}

	c.logger.WithFields(logrus.Fields{"count": len(out), "before": now.Unix()}).Debug("Fetched expired oTokens")
	return out, nil
}
