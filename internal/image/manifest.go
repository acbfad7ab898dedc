package image

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"sdburn/internal/failure"
)

// ManifestDiscoverer reads a latest.json pointer and the <url>.json details
// file next to the image it names.
type ManifestDiscoverer struct {
	url  string
	http *http.Client
	log  logrus.FieldLogger
}

type latestManifest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Version  string `json:"version"`
}

type imageManifest struct {
	Filename         string `json:"filename"`
	CompressedMD5    string `json:"compressed_md5"`
	CompressedSize   int64  `json:"compressed_size"`
	UncompressedSize int64  `json:"uncompressed_size"`
}

func NewManifestDiscoverer(url string, httpClient *http.Client, log logrus.FieldLogger) *ManifestDiscoverer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ManifestDiscoverer{url: url, http: httpClient, log: log.WithField("manifest", url)}
}

func (d *ManifestDiscoverer) Latest(ctx context.Context) (Source, error) {
	var latest latestManifest
	if err := d.getJSON(ctx, d.url, &latest); err != nil {
		return Source{}, err
	}
	if latest.URL == "" {
		return Source{}, failure.New(failure.ServerDownError, fmt.Errorf("%s has no image url", d.url), "")
	}

	var details imageManifest
	if err := d.getJSON(ctx, latest.URL+".json", &details); err != nil {
		return Source{}, err
	}

	src := Source{
		Version:          latest.Version,
		URL:              latest.URL,
		Filename:         latest.Filename,
		CompressedSize:   details.CompressedSize,
		UncompressedSize: details.UncompressedSize,
	}
	if src.Filename == "" {
		src.Filename = details.Filename
	}
	if details.CompressedMD5 != "" {
		sum, err := parseChecksum(details.CompressedMD5)
		if err != nil {
			return Source{}, failure.Wrap(failure.ServerDownError, err)
		}
		src.Checksum = sum
	}
	if src.Filename == "" {
		return Source{}, failure.New(failure.ServerDownError, fmt.Errorf("manifest for %s has no filename", latest.URL), "")
	}
	d.log.WithField("image", src.Filename).Info("found latest image")
	return src, nil
}

func (d *ManifestDiscoverer) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure.Wrap(failure.ServerDownError, err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return categorizeRequest(err, failure.ServerDownError)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure.New(failure.ServerDownError, fmt.Errorf("GET %s: %s", url, resp.Status), "")
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return failure.Wrap(failure.ServerDownError, fmt.Errorf("decoding %s: %w", url, err))
	}
	return nil
}
