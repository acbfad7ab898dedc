package image

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdburn/internal/failure"
	"sdburn/internal/logging"
)

func TestManifestLatestMergesBothFiles(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/latest.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"url": "%s/images/os-1.1.0.img.gz", "filename": "os-1.1.0.img.gz", "version": "1.1.0"}`, srv.URL)
	})
	mux.HandleFunc("/images/os-1.1.0.img.gz.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"compressed_md5": "0123456789abcdef0123456789abcdef", "compressed_size": 900, "uncompressed_size": 3000}`)
	})

	d := NewManifestDiscoverer(srv.URL+"/latest.json", srv.Client(), logging.Discard())
	src, err := d.Latest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Source{
		Version:          "1.1.0",
		URL:              srv.URL + "/images/os-1.1.0.img.gz",
		Filename:         "os-1.1.0.img.gz",
		CompressedSize:   900,
		UncompressedSize: 3000,
		Checksum:         "0123456789abcdef0123456789abcdef",
	}, src)
}

func TestManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>maintenance</html>")
		}},
		{"no url", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"filename": "x.img.gz"}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewManifestDiscoverer(srv.URL+"/latest.json", srv.Client(), logging.Discard()).Latest(context.Background())

			cat, ok := failure.CategoryOf(err)
			require.True(t, ok, "%v", err)
			assert.Equal(t, failure.ServerDownError, cat)
		})
	}
}
