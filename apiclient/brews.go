package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-brew-client/brews"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
)

const (
	pathBrews     = "/brews"
	pathBriefings = "/briefings"
	pathFeedback  = "/feedback"
)

func (c *Client) ListBrews(ctx context.Context) ([]brews.Brew, error) {
	var resp struct {
		Brews []brews.Brew `json:"brews"`
	}
	if err := c.call(ctx, request{method: http.MethodGet, path: pathBrews, authenticated: true}, &resp); err != nil {
		return nil, err
	}
	return resp.Brews, nil
}

func (c *Client) GetBrew(ctx context.Context, id string) (brews.Brew, error) {
	path, err := resourcePath(pathBrews, id)
	if err != nil {
		return brews.Brew{}, err
	}
	var resp struct {
		Brew brews.Brew `json:"brew"`
	}
	if err := c.call(ctx, request{method: http.MethodGet, path: path, authenticated: true}, &resp); err != nil {
		return brews.Brew{}, err
	}
	return resp.Brew, nil
}

func (c *Client) CreateBrew(ctx context.Context, req brews.CreateRequest) (brews.Created, error) {
	if err := req.Validate(); err != nil {
		return brews.Created{}, err
	}
	var created brews.Created
	err := c.call(ctx, request{
		method:        http.MethodPost,
		path:          pathBrews,
		body:          req.Normalize(),
		authenticated: true,
	}, &created)
	return created, err
}

func (c *Client) ListBriefings(ctx context.Context, opts brews.ListBriefingsOptions) (brews.BriefingPage, error) {
	if err := opts.Validate(); err != nil {
		return brews.BriefingPage{}, err
	}
	opts = opts.Normalize()

	query := url.Values{}
	query.Set("brew_id", opts.BrewID)
	query.Set("limit", strconv.Itoa(opts.Limit))
	query.Set("offset", strconv.Itoa(opts.Offset))

	var page brews.BriefingPage
	err := c.call(ctx, request{method: http.MethodGet, path: pathBriefings, query: query, authenticated: true}, &page)
	return page, err
}

func (c *Client) GetBriefing(ctx context.Context, id string, opts brews.GetBriefingOptions) (brews.Briefing, error) {
	path, err := resourcePath(pathBriefings, id)
	if err != nil {
		return brews.Briefing{}, err
	}
	query := url.Values{}
	query.Set("include_content", strconv.FormatBool(opts.IncludeContent))
	query.Set("include_articles", strconv.FormatBool(opts.IncludeArticles))

	var briefing brews.Briefing
	err = c.call(ctx, request{method: http.MethodGet, path: path, query: query, authenticated: true}, &briefing)
	return briefing, err
}

func (c *Client) SubmitFeedback(ctx context.Context, req brews.FeedbackRequest) (brews.FeedbackReceipt, error) {
	if err := req.Validate(); err != nil {
		return brews.FeedbackReceipt{}, err
	}
	var receipt brews.FeedbackReceipt
	err := c.call(ctx, request{method: http.MethodPost, path: pathFeedback, body: req, authenticated: true}, &receipt)
	return receipt, err
}

// FeedbackStatus returns the feedback already given on an editorial
func (c *Client) FeedbackStatus(ctx context.Context, editorialID string) (brews.FeedbackStatus, error) {
	path, err := resourcePath(pathFeedback, editorialID)
	if err != nil {
		return brews.FeedbackStatus{}, err
	}
	var status brews.FeedbackStatus
	err = c.call(ctx, request{method: http.MethodGet, path: path, authenticated: true}, &status)
	return status, err
}

func resourcePath(collection, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s id is required: %w", strings.TrimPrefix(collection, "/"), brewerrors.ErrInvalidRequest)
	}
	return collection + "/" + url.PathEscape(id), nil
}
