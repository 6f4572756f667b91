package plugin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// CacheDir returns the on-disk location for downloaded processor/bundler
// packages, grounded on bennypowers-cem/workspace.Remote's
// "xdg.CacheHome/<tool>/packages/<name>" layout.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "jspack", "packages")
}

// NewCachedClient returns an *http.Client whose transport serves repeat
// fetches of the same package tarball/metadata from disk per RFC 7234
// headers, the same diskcache.New + httpcache.NewTransport pairing
// bennypowers-cem/workspace/httpcache.go uses.
func NewCachedClient() *http.Client {
	cache := diskcache.New(CacheDir())
	return httpcache.NewTransport(cache).Client()
}

// CommandInstaller builds an InstallFunc that runs a user-configured
// installCommand template, substituting pkg for the literal "<package>"
// token.
func CommandInstaller(template string) InstallFunc {
	return func(ctx context.Context, pkg string) error {
		if template == "" {
			return fmt.Errorf("plugin: no installCommand configured")
		}
		line := strings.ReplaceAll(template, "<package>", pkg)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return fmt.Errorf("plugin: empty installCommand after substitution")
		}
		cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}
}

// FetchToCache downloads url through the cached client and writes it under
// CacheDir()/name, returning the local path. Used by an InstallFunc that
// fetches a single-file plugin rather than shelling out to a package
// manager.
func FetchToCache(client *http.Client, url, name string) (string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("plugin: fetching %s: HTTP %d", url, resp.StatusCode)
	}
	dir := CacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}
