// Package version provides version information and update checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// Version is the current version of dap-dump
	Version = "0.2.0"

	// GitHubRepo is the repository path
	GitHubRepo = "ctagard/dap-dump"

	// GitHubAPIURL is the GitHub API endpoint for latest release
	GitHubAPIURL = "https://api.github.com/repos/%s/releases/latest"
)

// UpdateInfo contains information about available updates
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
	Error           string    `json:"error,omitempty"`
}

// UpdateMessage returns a one-line notice, empty when up to date.
func (u *UpdateInfo) UpdateMessage() string {
	if u.Error != "" || !u.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("dap-dump v%s is available (current: v%s): %s",
		u.LatestVersion, u.CurrentVersion, u.ReleaseURL)
}

// Checker queries the latest release once and caches the answer.
type Checker struct {
	// URL is the release endpoint; empty means the GitHub API.
	URL    string
	Client *http.Client

	mu         sync.RWMutex
	updateInfo *UpdateInfo
}

// NewChecker creates a new version checker
func NewChecker() *Checker {
	return &Checker{
		URL:    fmt.Sprintf(GitHubAPIURL, GitHubRepo),
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdates fetches the latest release. Failures are reported in
// UpdateInfo.Error, never returned.
func (c *Checker) CheckForUpdates(ctx context.Context) *UpdateInfo {
	info := &UpdateInfo{CurrentVersion: Version, CheckedAt: time.Now()}
	if err := c.fetch(ctx, info); err != nil {
		info.Error = err.Error()
	}

	c.mu.Lock()
	c.updateInfo = info
	c.mu.Unlock()
	return info
}

func (c *Checker) fetch(ctx context.Context, info *UpdateInfo) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "dap-dump/"+Version)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release endpoint returned status %d", resp.StatusCode)
	}
	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	info.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	info.ReleaseURL = release.HTMLURL
	info.UpdateAvailable = compareVersions(Version, info.LatestVersion) < 0
	return nil
}

// GetUpdateInfo returns the cached update info, nil before a check.
func (c *Checker) GetUpdateInfo() *UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updateInfo
}

// compareVersions compares two dotted versions, ignoring a "v" prefix and
// pre-release suffixes. Returns -1, 0 or 1.
func compareVersions(v1, v2 string) int {
	a, b := parseVersion(v1), parseVersion(v2)
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func parseVersion(v string) [3]int {
	var out [3]int
	v, _, _ = strings.Cut(strings.TrimPrefix(v, "v"), "-")
	for i, part := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(part)
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
