package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	scanerrors "github.com/standardbeagle/themescan/internal/errors"
	"github.com/standardbeagle/themescan/internal/types"
)

// maxListingPages bounds Link-header following on the asset listing
const maxListingPages = 200

// ErrNoActiveTheme is returned when the store has no theme with role "main"
var ErrNoActiveTheme = errors.New("no active theme found")

// Theme is one entry of themes.json
type Theme struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type assetsResponse struct {
	Assets []types.Asset `json:"assets"`
}

type assetResponse struct {
	Asset struct {
		Key        string  `json:"key"`
		Value      *string `json:"value"`
		Attachment string  `json:"attachment,omitempty"`
	} `json:"asset"`
}

type themesResponse struct {
	Themes []Theme `json:"themes"`
}

// FetchAssetsList returns every asset of a theme. Any non-OK response is fatal:
// nothing can be scanned without the listing.
func (c *Client) FetchAssetsList(ctx context.Context, themeID int64) ([]types.Asset, error) {
	next := c.adminURL(fmt.Sprintf("themes/%d/assets.json", themeID))

	var assets []types.Asset
	for page := 0; next != "" && page < maxListingPages; page++ {
		resp, err := c.FetchWithRetry(ctx, next, c.authHeaders(), c.maxAttempts, c.baseDelay)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			snippet := readSnippet(resp)
			_ = resp.Body.Close()
			return nil, scanerrors.NewFetchError(next, fmt.Errorf("failed to fetch asset list: %s", snippet)).
				WithStatus(resp.StatusCode)
		}

		var body assetsResponse
		err = json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, scanerrors.NewFetchError(next, fmt.Errorf("failed to decode asset list: %w", err))
		}

		assets = append(assets, body.Assets...)
		next = nextPageLink(resp.Header.Get("Link"))
	}

	// A truncated listing would report unscanned references as unused
	if next != "" {
		c.logger.Warn("asset listing page ceiling reached",
			zap.Int64("theme_id", themeID), zap.Int("pages", maxListingPages), zap.Int("assets", len(assets)))
		return nil, scanerrors.NewFetchError(next,
			fmt.Errorf("asset list exceeds %d pages", maxListingPages))
	}

	c.logger.Debug("asset list fetched", zap.Int64("theme_id", themeID), zap.Int("assets", len(assets)))
	return assets, nil
}

// FetchAssetContent returns the text of one asset, or "" when it cannot be read.
// Failures never propagate: an unreadable file contributes no matches.
func (c *Client) FetchAssetContent(ctx context.Context, themeID int64, key string) string {
	query := url.Values{"asset[key]": {key}}
	target := c.adminURL(fmt.Sprintf("themes/%d/assets.json", themeID)) + "?" + query.Encode()

	resp, err := c.FetchWithRetry(ctx, target, c.authHeaders(), c.contentMaxAttempts, c.baseDelay)
	if err != nil {
		c.logger.Debug("asset fetch failed", zap.String("asset", key), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("asset fetch returned non-OK", zap.String("asset", key), zap.Int("status", resp.StatusCode))
		return ""
	}

	var body assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Debug("asset body undecodable", zap.String("asset", key), zap.Error(err))
		return ""
	}
	if body.Asset.Value == nil {
		// Binary assets come back as attachment only
		return ""
	}
	return *body.Asset.Value
}

// ListThemes returns every theme of the store
func (c *Client) ListThemes(ctx context.Context) ([]Theme, error) {
	target := c.adminURL("themes.json")
	resp, err := c.FetchWithRetry(ctx, target, c.authHeaders(), c.maxAttempts, c.baseDelay)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, scanerrors.NewFetchError(target, fmt.Errorf("failed to list themes: %s", readSnippet(resp))).
			WithStatus(resp.StatusCode)
	}

	var body themesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, scanerrors.NewFetchError(target, fmt.Errorf("failed to decode themes: %w", err))
	}
	return body.Themes, nil
}

// MainTheme returns the published theme
func (c *Client) MainTheme(ctx context.Context) (*Theme, error) {
	themes, err := c.ListThemes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range themes {
		if themes[i].Role == "main" {
			return &themes[i], nil
		}
	}
	return nil, ErrNoActiveTheme
}

// ResolveThemeID returns configured when set, otherwise the id of the published theme
func (c *Client) ResolveThemeID(ctx context.Context, configured int64) (int64, error) {
	if configured > 0 {
		return configured, nil
	}
	theme, err := c.MainTheme(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("resolved main theme", zap.Int64("theme_id", theme.ID), zap.String("name", theme.Name))
	return theme.ID, nil
}

// nextPageLink extracts the rel="next" target of a Link header
func nextPageLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			param = strings.ReplaceAll(strings.TrimSpace(param), " ", "")
			if param == `rel="next"` || param == "rel=next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
