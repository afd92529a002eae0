package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

// Cache stores resolved releases with a TTL. Implementations must be
// safe for concurrent use. A nil cache disables caching.
type Cache interface {
	GetRelease(ctx context.Context, id, version string) (*pack.Release, bool, error)
	PutRelease(ctx context.Context, id, version string, release *pack.Release) error
}

// Config holds registry client configuration.
type Config struct {
	// BaseURL is the registry API root, e.g. "https://registry.example.com".
	BaseURL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RetryMax is the maximum number of retries per request.
	RetryMax int
}

// Client implements pack.Fetcher against the registry HTTP API.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	cache   Cache
	logger  zerolog.Logger
}

// NewClient creates a registry client. cache may be nil.
func NewClient(cfg Config, cache Cache, logger zerolog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.Logger = nil
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    rc,
		cache:   cache,
		logger:  logger,
	}
}

// nodeVersion is the registry's release representation.
type nodeVersion struct {
	Version     string `json:"version"`
	DownloadURL string `json:"downloadUrl"`
	Deprecated  bool   `json:"deprecated"`
}

// node is the registry's package representation.
type node struct {
	ID            string       `json:"id"`
	Repository    string       `json:"repository"`
	LatestVersion *nodeVersion `json:"latest_version"`
}

// Resolve maps (id, version) to a concrete release. An empty version
// resolves to the registry's latest release.
func (c *Client) Resolve(ctx context.Context, id, version string) (*pack.Release, error) {
	if c.cache != nil {
		if release, ok, err := c.cache.GetRelease(ctx, id, version); err != nil {
			c.logger.Warn().Err(err).Str("package", id).Msg("Registry cache lookup failed")
		} else if ok {
			return release, nil
		}
	}

	release, err := c.resolveRemote(ctx, id, version)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.PutRelease(ctx, id, version, release); err != nil {
			c.logger.Warn().Err(err).Str("package", id).Msg("Registry cache store failed")
		}
	}
	return release, nil
}

func (c *Client) resolveRemote(ctx context.Context, id, version string) (*pack.Release, error) {
	var endpoint string
	if version == "" {
		endpoint = fmt.Sprintf("%s/nodes/%s", c.baseURL, url.PathEscape(id))
	} else {
		endpoint = fmt.Sprintf("%s/nodes/%s/versions/%s", c.baseURL, url.PathEscape(id), url.PathEscape(version))
	}

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, pack.NewFetchError(fmt.Sprintf("resolving %s@%s", id, orLatest(version)), err).WithPackage(id)
	}
	if status == http.StatusNotFound {
		return nil, pack.NewNotFoundError(fmt.Sprintf("registry has no release %s@%s", id, orLatest(version)), nil).WithPackage(id)
	}
	if status != http.StatusOK {
		return nil, pack.NewFetchError(fmt.Sprintf("registry returned status %d for %s@%s", status, id, orLatest(version)), nil).WithPackage(id)
	}

	release := &pack.Release{RegistryID: id}
	if version == "" {
		var n node
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, pack.NewFetchError(fmt.Sprintf("decoding registry response for %s", id), err).WithPackage(id)
		}
		if n.LatestVersion == nil || n.LatestVersion.DownloadURL == "" {
			return nil, pack.NewNotFoundError(fmt.Sprintf("registry has no downloadable release for %s", id), nil).WithPackage(id)
		}
		if n.ID != "" {
			release.RegistryID = n.ID
		}
		release.Version = n.LatestVersion.Version
		release.DownloadURL = n.LatestVersion.DownloadURL
		release.RepoURL = n.Repository
		return release, nil
	}

	var v nodeVersion
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, pack.NewFetchError(fmt.Sprintf("decoding registry response for %s@%s", id, version), err).WithPackage(id)
	}
	if v.DownloadURL == "" {
		return nil, pack.NewNotFoundError(fmt.Sprintf("registry has no downloadable archive for %s@%s", id, version), nil).WithPackage(id)
	}
	release.Version = v.Version
	release.DownloadURL = v.DownloadURL
	return release, nil
}

// Download retrieves the release archive into dir under an
// unpredictable file name and returns its path. The caller removes the
// file after extraction.
func (c *Client) Download(ctx context.Context, release *pack.Release, dir string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, release.DownloadURL, nil)
	if err != nil {
		return "", pack.NewFetchError(fmt.Sprintf("building download request for %s@%s", release.RegistryID, release.Version), err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", pack.NewFetchError(fmt.Sprintf("downloading %s@%s", release.RegistryID, release.Version), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pack.NewFetchError(fmt.Sprintf("archive download for %s@%s returned status %d", release.RegistryID, release.Version, resp.StatusCode), nil)
	}

	path := filepath.Join(dir, fmt.Sprintf("cnr-%s.zip", uuid.NewString()))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating archive file %s: %w", path, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return "", pack.NewFetchError(fmt.Sprintf("writing archive for %s@%s", release.RegistryID, release.Version), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing archive file %s: %w", path, err)
	}

	c.logger.Debug().
		Str("package", release.RegistryID).
		Str("version", release.Version).
		Str("path", path).
		Msg("Downloaded release archive")
	return path, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func orLatest(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}
