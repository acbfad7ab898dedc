package image

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"sdburn/internal/failure"
	"sdburn/internal/progress"
)

// ProgressFunc receives percent (0..100) and a human status line.
type ProgressFunc func(percent int, status string)

// Downloader fetches images onto an afero filesystem, verifying the MD5
// checksum when the source has one.
type Downloader struct {
	fs        afero.Fs
	http      *http.Client
	estimator progress.Estimator
	interval  time.Duration
	log       logrus.FieldLogger
}

func NewDownloader(fs afero.Fs, httpClient *http.Client, log logrus.FieldLogger) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Downloader{
		fs:        fs,
		http:      httpClient,
		estimator: progress.Estimator{Smoothing: progress.DefaultSmoothing},
		interval:  300 * time.Millisecond,
		log:       log,
	}
}

// Download stores src at dest. An existing file with the expected checksum is
// kept as is. The image only appears at dest once it is complete and verified.
func (d *Downloader) Download(ctx context.Context, src Source, dest string, report ProgressFunc) error {
	if report == nil {
		report = func(int, string) {}
	}
	log := d.log.WithFields(logrus.Fields{"url": src.URL, "dest": dest})
	report(0, "preparing to download OS image..")

	if src.Checksum != "" {
		if ok, _ := d.verify(dest, src.Checksum); ok {
			log.Info("image already downloaded")
			report(100, "download completed")
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return failure.Wrap(failure.DownloadError, err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return categorizeRequest(err, failure.DownloadError)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure.New(failure.DownloadError, fmt.Errorf("GET %s: %s", src.URL, resp.Status), "")
	}

	total := resp.ContentLength
	if total <= 0 {
		total = src.CompressedSize
	}

	part := dest + ".part"
	f, err := d.fs.Create(part)
	if err != nil {
		return categorizeWrite(fmt.Errorf("creating %s: %w", part, err))
	}
	sum := md5.New()
	pw := &progressWriter{
		total:     total,
		report:    report,
		estimator: d.estimator,
		interval:  d.interval,
		last:      progress.Sample{Timestamp: time.Now()},
	}
	_, copyErr := copyBuffer(ctx, f, sum, pw, resp.Body)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = d.fs.Remove(part)
		return copyErr
	}

	if src.Checksum != "" {
		got := hex.EncodeToString(sum.Sum(nil))
		if got != src.Checksum {
			_ = d.fs.Remove(part)
			return failure.New(failure.MD5Error,
				fmt.Errorf("checksum mismatch for %s", src.Filename),
				fmt.Sprintf("expected md5 %s, got %s", src.Checksum, got))
		}
		log.Debug("md5 verified")
	}
	if err := d.fs.Rename(part, dest); err != nil {
		return categorizeWrite(fmt.Errorf("moving %s into place: %w", part, err))
	}

	log.WithField("size", humanize.Bytes(uint64(pw.written))).Info("download finished")
	report(100, "download completed")
	return nil
}

// copyBuffer is io.Copy into both the file and the hash, checking ctx between
// reads and keeping read and write failures apart.
func copyBuffer(ctx context.Context, f io.Writer, h hash.Hash, pw *progressWriter, r io.Reader) (int64, error) {
	buf := make([]byte, 256*1024)
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		nr, rerr := r.Read(buf)
		if nr > 0 {
			if _, err := f.Write(buf[:nr]); err != nil {
				return n, categorizeWrite(err)
			}
			h.Write(buf[:nr])
			pw.add(int64(nr))
			n += int64(nr)
		}
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			return n, categorizeRequest(fmt.Errorf("reading download: %w", rerr), failure.DownloadError)
		}
	}
}

func categorizeWrite(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return failure.Wrap(failure.FreeSpaceError, err)
	}
	return failure.Wrap(failure.DownloadError, err)
}

// verify reports whether path exists and has the given md5 digest.
func (d *Downloader) verify(path, checksum string) (bool, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == checksum, nil
}

type progressWriter struct {
	total     int64
	written   int64
	report    ProgressFunc
	estimator progress.Estimator
	interval  time.Duration
	last      progress.Sample
}

func (p *progressWriter) add(n int64) {
	p.written += n
	now := time.Now()
	elapsed := now.Sub(p.last.Timestamp)
	if elapsed < p.interval {
		return
	}
	speed, eta := p.estimator.Estimate(p.last.BytesWritten, p.written, elapsed.Seconds(), p.total)
	if p.total > 0 {
		percent := progress.Percent(p.written, p.total)
		if percent < 100 {
			p.report(percent, progress.Status(speed, eta, percent, 24*time.Hour))
		}
	} else {
		p.report(0, fmt.Sprintf("downloaded %s", humanize.Bytes(uint64(p.written))))
	}
	p.last = progress.Sample{BytesWritten: p.written, Timestamp: now}
}
