package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// listPageSize is the $top value for listing requests; 200 is the Graph
// API maximum for drive item collections.
const listPageSize = 200

// expandThumbnails is the query option asking Graph to inline the
// thumbnails collection on item responses.
const expandThumbnails = "$expand=thumbnails"

type listChildrenResponse struct {
	Value    []Item `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// encodePathSegments URL-encodes each segment of a slash-separated path so
// characters like #, ?, % and spaces survive interpolation into API URLs.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// itemPath builds the API path addressing a drive item by its path
// relative to the drive root. The empty string and "/" address the root.
func itemPath(drivePath string) string {
	drivePath = strings.Trim(drivePath, "/")
	if drivePath == "" {
		return "/me/drive/root"
	}

	return fmt.Sprintf("/me/drive/root:/%s:", encodePathSegments(drivePath))
}

// GetItemByPath retrieves a single drive item by path. With thumbnails
// set, the thumbnails collection is expanded into the response so the
// normalizer can cache it without a second round trip.
func (c *Client) GetItemByPath(ctx context.Context, drivePath string, thumbnails bool) (*Item, error) {
	c.logger.Debug("getting item", slog.String("path", drivePath))

	apiPath := itemPath(drivePath)
	if thumbnails {
		apiPath += "?" + expandThumbnails
	}

	return c.fetchItem(ctx, apiPath)
}

// GetItemByID retrieves a single drive item by ID, expanding thumbnails.
func (c *Client) GetItemByID(ctx context.Context, itemID string) (*Item, error) {
	c.logger.Debug("getting item by id", slog.String("item_id", itemID))

	return c.fetchItem(ctx, fmt.Sprintf("/me/drive/items/%s?%s", url.PathEscape(itemID), expandThumbnails))
}

// fetchItem fetches one drive item from the given API path and decodes it.
func (c *Client) fetchItem(ctx context.Context, apiPath string) (*Item, error) {
	resp, err := c.get(ctx, apiPath)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("graph: decoding item response: %w", err)
	}

	return &item, nil
}

// ListChildren returns all children of the folder at drivePath, following
// pagination until the listing is complete.
func (c *Client) ListChildren(ctx context.Context, drivePath string) ([]Item, error) {
	c.logger.Debug("listing children", slog.String("path", drivePath))

	apiPath := fmt.Sprintf("%s/children?$top=%d", itemPath(drivePath), listPageSize)

	var items []Item

	page := 1

	for apiPath != "" {
		pageItems, nextPath, err := c.listChildrenPage(ctx, apiPath, page)
		if err != nil {
			return nil, err
		}

		items = append(items, pageItems...)
		apiPath = nextPath
		page++
	}

	c.logger.Debug("listing complete",
		slog.String("path", drivePath),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// listChildrenPage fetches one page of children and the next page path
// (empty when the listing is exhausted).
func (c *Client) listChildrenPage(ctx context.Context, apiPath string, page int) ([]Item, string, error) {
	resp, err := c.get(ctx, apiPath)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	var lcr listChildrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&lcr); err != nil {
		return nil, "", fmt.Errorf("graph: decoding children response: %w", err)
	}

	c.logger.Debug("fetched children page",
		slog.Int("page", page),
		slog.Int("count", len(lcr.Value)),
	)

	var nextPath string
	if lcr.NextLink != "" {
		if !strings.HasPrefix(lcr.NextLink, c.baseURL) {
			return nil, "", fmt.Errorf("graph: nextLink %q does not match base URL %q", lcr.NextLink, c.baseURL)
		}

		nextPath = lcr.NextLink[len(c.baseURL):]
	}

	return lcr.Value, nextPath, nil
}

// GetDownloadURL resolves the pre-authenticated download URL for an item.
// Graph answers the /content request with a 302 whose Location carries the
// signed URL; the redirect is captured rather than followed so the URL can
// be cached and handed to the browser. The URL itself embeds auth tokens
// and is never logged.
func (c *Client) GetDownloadURL(ctx context.Context, itemID string) (string, error) {
	c.logger.Debug("resolving download url", slog.String("item_id", itemID))

	apiPath := fmt.Sprintf("/me/drive/items/%s/content", url.PathEscape(itemID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath, nil)
	if err != nil {
		return "", fmt.Errorf("graph: creating content request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return "", fmt.Errorf("graph: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.noRedirectClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("graph: content request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusMovedPermanently &&
		resp.StatusCode != http.StatusTemporaryRedirect {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("request-id"),
			Message:    "expected redirect from content endpoint",
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("graph: content redirect carried no Location header")
	}

	return location, nil
}

// noRedirectClient clones the client's transport settings but stops at the
// first redirect so the Location header can be read.
func (c *Client) noRedirectClient() *http.Client {
	return &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   c.httpClient.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
