// Package ledger talks to the remote points service. Calls are single
// attempts with a bounded timeout; a failed call is reported to the caller
// and never retried here.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/meng-fucius/guardbot/internal/config"
)

const (
	OperationAdd       = "add"
	OperationDeduct    = "deduct"
	OperationTransfer  = "transfer"
	OperationRandomAdd = "randomAdd"
)

const (
	codeOK                  = 0
	codeDuplicateSuppressed = 40001
	codeInsufficientBalance = 40002
)

var (
	// ErrDuplicateSuppressed means the service already credited this occurrence.
	ErrDuplicateSuppressed = errors.New("duplicate credit suppressed")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type (
	Client struct {
		httpClient *http.Client
		baseURL    string
		modifyPath string
		queryPath  string
		rankPath   string
	}

	ModifyRequest struct {
		UserID     string `json:"userId"`
		Name       string `json:"name"`
		Operation  string `json:"operation"`
		Amount     int    `json:"amount"`
		Target     string `json:"target,omitempty"`
		TargetName string `json:"targetName,omitempty"`
	}

	Points struct {
		Score int `json:"score"`
		Rank  int `json:"rank"`
	}

	RankEntry struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
)

func NewClient(cfg config.Ledger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		modifyPath: cfg.ModifyPath,
		queryPath:  cfg.QueryPath,
		rankPath:   cfg.RankPath,
	}
}

func (c *Client) Modify(ctx context.Context, modify ModifyRequest) (*Points, error) {
	body, err := json.Marshal(modify)
	if err != nil {
		return nil, fmt.Errorf("marshal modify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.modifyPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	points := &Points{}
	if err := c.do(req, points); err != nil {
		return nil, err
	}
	return points, nil
}

func (c *Client) Query(ctx context.Context, userID int64) (*Points, error) {
	endpoint := c.endpoint(c.queryPath) + "?userId=" + url.QueryEscape(strconv.FormatInt(userID, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	points := &Points{}
	if err := c.do(req, points); err != nil {
		return nil, err
	}
	return points, nil
}

func (c *Client) Rank(ctx context.Context) ([]RankEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.rankPath), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var data struct {
		Rank []RankEntry `json:"rank"`
	}
	if err := c.do(req, &data); err != nil {
		return nil, err
	}
	return data.Rank, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) do(req *http.Request, data any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	switch env.Code {
	case codeOK:
	case codeDuplicateSuppressed:
		return ErrDuplicateSuppressed
	case codeInsufficientBalance:
		return ErrInsufficientBalance
	default:
		return fmt.Errorf("ledger error %d: %s", env.Code, env.Message)
	}

	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
