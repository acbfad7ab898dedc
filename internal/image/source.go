// Package image finds the latest OS image, downloads and verifies it, and
// measures how many bytes it expands to.
package image

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"sdburn/internal/failure"
)

// Source describes one downloadable image. Checksum is an MD5 hex digest;
// empty means it cannot be verified.
type Source struct {
	Version          string
	URL              string
	Filename         string
	CompressedSize   int64
	UncompressedSize int64
	Checksum         string
}

func (s Source) String() string {
	if s.Version == "" {
		return s.Filename
	}
	return fmt.Sprintf("%s (%s)", s.Filename, s.Version)
}

// Discoverer finds the most recent image.
type Discoverer interface {
	Latest(ctx context.Context) (Source, error)
}

// categorizeRequest tags an HTTP request failure: unreachable hosts are an
// internet problem, anything else is the server's.
func categorizeRequest(err error, fallback failure.Category) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return failure.Wrap(failure.InternetError, err)
	case errors.As(err, &urlErr) && urlErr.Timeout():
		return failure.Wrap(failure.InternetError, err)
	}
	return failure.Wrap(fallback, err)
}

// parseChecksum accepts the output of md5sum ("<hex>  <name>") or a bare digest.
func parseChecksum(s string) (string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", errors.New("empty checksum")
	}
	sum := strings.ToLower(fields[0])
	if len(sum) != 32 || strings.Trim(sum, "0123456789abcdef") != "" {
		return "", fmt.Errorf("malformed md5 checksum %q", fields[0])
	}
	return sum, nil
}
