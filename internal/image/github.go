package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v55/github"
	"github.com/sirupsen/logrus"

	"sdburn/internal/failure"
)

// GitHubDiscoverer picks the newest stable release of a repository that has
// an asset matching a pattern.
type GitHubDiscoverer struct {
	client  *github.Client
	http    *http.Client
	owner   string
	repo    string
	pattern *regexp.Regexp
	log     logrus.FieldLogger
}

func NewGitHubDiscoverer(client *github.Client, httpClient *http.Client, owner, repo, assetPattern string, log logrus.FieldLogger) (*GitHubDiscoverer, error) {
	re, err := regexp.Compile(assetPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid asset pattern: %w", err)
	}
	if client == nil {
		client = github.NewClient(httpClient)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GitHubDiscoverer{
		client:  client,
		http:    httpClient,
		owner:   owner,
		repo:    repo,
		pattern: re,
		log:     log.WithField("repository", owner+"/"+repo),
	}, nil
}

type release struct {
	version *semver.Version
	rel     *github.RepositoryRelease
}

func (d *GitHubDiscoverer) stableReleases(ctx context.Context) ([]release, error) {
	rels, _, err := d.client.Repositories.ListReleases(ctx, d.owner, d.repo, &github.ListOptions{PerPage: 100})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode < 500 {
			return nil, failure.Wrap(failure.DownloadError, err)
		}
		return nil, categorizeRequest(err, failure.ServerDownError)
	}

	var out []release
	for _, rel := range rels {
		if rel.GetDraft() || rel.GetPrerelease() {
			continue
		}
		// rc and beta tags carry a semver prerelease part
		v, err := semver.NewVersion(rel.GetTagName())
		if err != nil || v.Prerelease() != "" {
			continue
		}
		out = append(out, release{version: v, rel: rel})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version.GreaterThan(out[j].version) })
	return out, nil
}

// Latest returns the image asset of the highest stable release. Releases
// without a matching asset are skipped.
func (d *GitHubDiscoverer) Latest(ctx context.Context) (Source, error) {
	rels, err := d.stableReleases(ctx)
	if err != nil {
		return Source{}, err
	}
	for _, r := range rels {
		src, ok := d.pick(r)
		if !ok {
			d.log.WithField("version", r.version.Original()).Debug("release has no matching image")
			continue
		}
		if sumURL := d.checksumURL(r, src.Filename); sumURL != "" {
			sum, err := d.fetchChecksum(ctx, sumURL)
			if err != nil {
				return Source{}, err
			}
			src.Checksum = sum
		}
		d.log.WithFields(logrus.Fields{"version": src.Version, "asset": src.Filename}).Info("found latest image")
		return src, nil
	}
	return Source{}, failure.New(failure.DownloadError,
		fmt.Errorf("no release of %s/%s has an asset matching %s", d.owner, d.repo, d.pattern), "")
}

func (d *GitHubDiscoverer) pick(r release) (Source, bool) {
	var names []string
	byName := map[string]*github.ReleaseAsset{}
	for _, a := range r.rel.Assets {
		if d.pattern.MatchString(a.GetName()) {
			names = append(names, a.GetName())
			byName[a.GetName()] = a
		}
	}
	if len(names) == 0 {
		return Source{}, false
	}
	sort.Strings(names)
	a := byName[names[0]]
	return Source{
		Version:        r.version.Original(),
		URL:            a.GetBrowserDownloadURL(),
		Filename:       a.GetName(),
		CompressedSize: int64(a.GetSize()),
	}, true
}

func (d *GitHubDiscoverer) checksumURL(r release, filename string) string {
	for _, a := range r.rel.Assets {
		if a.GetName() == filename+".md5" {
			return a.GetBrowserDownloadURL()
		}
	}
	return ""
}

func (d *GitHubDiscoverer) fetchChecksum(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", failure.Wrap(failure.DownloadError, err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return "", categorizeRequest(err, failure.DownloadError)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", failure.New(failure.DownloadError, fmt.Errorf("fetching checksum: %s", resp.Status), "")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", categorizeRequest(err, failure.DownloadError)
	}
	sum, err := parseChecksum(string(body))
	if err != nil {
		return "", failure.Wrap(failure.MD5Error, err)
	}
	return sum, nil
}
