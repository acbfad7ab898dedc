package image

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v55/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdburn/internal/failure"
	"sdburn/internal/logging"
)

const releasesJSON = `[
  {"tag_name": "v1.3.0-rc1", "assets": [{"name": "os-v1.3.0-rc1.img.gz", "browser_download_url": "%[1]s/dl/rc.img.gz"}]},
  {"tag_name": "v1.4.0", "draft": true, "assets": [{"name": "os-v1.4.0.img.gz", "browser_download_url": "%[1]s/dl/draft.img.gz"}]},
  {"tag_name": "nightly", "assets": [{"name": "os-nightly.img.gz", "browser_download_url": "%[1]s/dl/nightly.img.gz"}]},
  {"tag_name": "v1.1.0", "assets": [{"name": "os-v1.1.0.img.gz", "size": 100, "browser_download_url": "%[1]s/dl/old.img.gz"}]},
  {"tag_name": "v1.2.0", "assets": [
    {"name": "os-v1.2.0.iso", "size": 50, "browser_download_url": "%[1]s/dl/os.iso"},
    {"name": "os-v1.2.0.img.gz", "size": 123, "browser_download_url": "%[1]s/dl/os.img.gz"},
    {"name": "os-v1.2.0.img.gz.md5", "browser_download_url": "%[1]s/dl/os.img.gz.md5"}
  ]},
  {"tag_name": "v1.3.0", "assets": [{"name": "notes.txt", "browser_download_url": "%[1]s/dl/notes.txt"}]}
]`

func newGitHubServer(t *testing.T, md5Body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/repos/acme/os/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, releasesJSON, srv.URL)
	})
	mux.HandleFunc("/dl/os.img.gz.md5", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, md5Body)
	})
	return srv
}

func newTestGitHub(t *testing.T, srv *httptest.Server, pattern string) *GitHubDiscoverer {
	t.Helper()
	client := github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	d, err := NewGitHubDiscoverer(client, srv.Client(), "acme", "os", pattern, logging.Discard())
	require.NoError(t, err)
	return d
}

func TestGitHubLatestPicksHighestStableWithAsset(t *testing.T) {
	srv := newGitHubServer(t, "D41D8CD98F00B204E9800998ECF8427E  os-v1.2.0.img.gz\n")
	d := newTestGitHub(t, srv, `\.img\.gz$`)

	src, err := d.Latest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Source{
		Version:        "v1.2.0",
		URL:            srv.URL + "/dl/os.img.gz",
		Filename:       "os-v1.2.0.img.gz",
		CompressedSize: 123,
		Checksum:       "d41d8cd98f00b204e9800998ecf8427e",
	}, src)
}

func TestGitHubLatestKeepsStableTagsContainingPrereleaseWords(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/repos/acme/os/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[
  {"tag_name": "v2.1.0-beta.1", "assets": [{"name": "os-beta.img.gz", "browser_download_url": "%[1]s/dl/beta.img.gz"}]},
  {"tag_name": "v2.0.0+source", "assets": [{"name": "os-v2.0.0.img.gz", "browser_download_url": "%[1]s/dl/v2.img.gz"}]},
  {"tag_name": "v1.0.0", "assets": [{"name": "os-v1.0.0.img.gz", "browser_download_url": "%[1]s/dl/v1.img.gz"}]}
]`, srv.URL)
	})
	d := newTestGitHub(t, srv, `\.img\.gz$`)

	src, err := d.Latest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "v2.0.0+source", src.Version)
	assert.Equal(t, "os-v2.0.0.img.gz", src.Filename)
}

func TestGitHubLatestBadChecksum(t *testing.T) {
	srv := newGitHubServer(t, "not-a-digest")
	d := newTestGitHub(t, srv, `\.img\.gz$`)

	_, err := d.Latest(context.Background())

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.MD5Error, cat)
}

func TestGitHubLatestNoMatchingAsset(t *testing.T) {
	srv := newGitHubServer(t, "")
	d := newTestGitHub(t, srv, `\.zip$`)

	_, err := d.Latest(context.Background())

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.DownloadError, cat)
}

func TestGitHubServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	d := newTestGitHub(t, srv, `\.img\.gz$`)

	_, err := d.Latest(context.Background())

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.ServerDownError, cat)
}

func TestGitHubUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	d := newTestGitHub(t, srv, `\.img\.gz$`)
	srv.Close()

	_, err := d.Latest(context.Background())

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.InternetError, cat)
}

func TestNewGitHubDiscovererBadPattern(t *testing.T) {
	_, err := NewGitHubDiscoverer(nil, nil, "acme", "os", "(", logging.Discard())
	assert.Error(t, err)
}

func TestParseChecksum(t *testing.T) {
	sum, err := parseChecksum("  0123456789ABCDEF0123456789abcdef\n")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", sum)

	for _, bad := range []string{"", "xyz", "0123456789abcdef0123456789abcdeg"} {
		_, err := parseChecksum(bad)
		assert.Error(t, err, bad)
	}
}
