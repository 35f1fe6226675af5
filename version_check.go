package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/oszuidwest/zwfm-silentjack/internal/types"
	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

const (
	githubReleasesURL    = "https://api.github.com/repos/oszuidwest/zwfm-silentjack/releases/latest"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second
	versionCheckTimeout  = 30 * time.Second
)

// VersionChecker polls the latest release and reports whether it is newer
// than the running build. It is safe for concurrent use.
type VersionChecker struct {
	url    string
	client *http.Client

	mu       sync.RWMutex
	latest   string
	notified string // Release already announced in the log

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewVersionChecker returns a VersionChecker. Polling only runs when
// enabled and for release builds.
func NewVersionChecker(enabled bool) *VersionChecker {
	vc := newVersionChecker(githubReleasesURL)
	if !enabled || !isReleaseBuild(Version) {
		slog.Debug("update check disabled", "version", Version)
		return vc
	}
	go vc.run()
	return vc
}

func newVersionChecker(url string) *VersionChecker {
	return &VersionChecker{
		url:    url,
		client: &http.Client{Timeout: versionCheckTimeout},
		stopCh: make(chan struct{}),
	}
}

// Stop ends polling. It may be called more than once.
func (vc *VersionChecker) Stop() {
	vc.stopOnce.Do(func() { close(vc.stopCh) })
}

func (vc *VersionChecker) run() {
	delay := time.NewTimer(versionCheckDelay)
	defer delay.Stop()
	select {
	case <-delay.C:
	case <-vc.stopCh:
		return
	}

	ticker := time.NewTicker(versionCheckInterval)
	defer ticker.Stop()
	for {
		if err := vc.check(); err != nil {
			slog.Debug("update check failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-vc.stopCh:
			return
		}
	}
}

type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check fetches the latest release. Drafts and prereleases are ignored.
func (vc *VersionChecker) check() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-vc.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vc.url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "silentjack/"+Version)

	resp, err := vc.client.Do(req)
	if err != nil {
		return err
	}
	defer util.SafeCloseFunc(resp.Body, "release response body")()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release lookup returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return util.WrapError("decode release", err)
	}
	if release.Draft || release.Prerelease || release.TagName == "" {
		return nil
	}

	latest := normalizeVersion(release.TagName)
	vc.mu.Lock()
	vc.latest = latest
	announce := vc.notified != latest && isReleaseBuild(Version) && isNewerVersion(latest, Version)
	if announce {
		vc.notified = latest
	}
	vc.mu.Unlock()

	if announce {
		slog.Info("update available", "current", normalizeVersion(Version), "latest", latest)
	}
	return nil
}

// Info returns the running and latest known versions.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	latest := vc.latest
	vc.mu.RUnlock()

	info := types.VersionInfo{
		Current:   normalizeVersion(Version),
		Latest:    latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if latest != "" && isReleaseBuild(Version) {
		info.UpdateAvail = isNewerVersion(latest, Version)
	}
	return info
}

func isReleaseBuild(v string) bool {
	v = normalizeVersion(v)
	return v != "dev" && v != "unknown" && semver.IsValid("v"+v)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion reports whether latest is a higher semver than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare("v"+normalizeVersion(latest), "v"+normalizeVersion(current)) > 0
}
