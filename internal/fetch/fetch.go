package fetch

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// Mirrors reads a line-oriented mirror list. Blank lines and '#'
// comments are skipped; remaining lines are returned in file order.
func Mirrors(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var urls []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, s.Err()
}

// Download tries each mirror in order and stops at the first success,
// writing the artifact to cacheDir/name. Per-mirror failures are logged
// and the next mirror is tried; the error of the last mirror is
// returned when all of them fail.
func Download(mirrors []string, cacheDir, name string) (string, error) {
	if len(mirrors) == 0 {
		return "", errors.New("no mirrors configured")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(cacheDir, name)
	var lastErr error
	for _, uri := range mirrors {
		if err := downloadOne(uri, dest); err != nil {
			log.Warn().Str("mirror", uri).Err(err).Msg("mirror failed, trying next")
			lastErr = err
			continue
		}
		log.Info().Str("mirror", uri).Str("dest", dest).Msg("download complete")
		return dest, nil
	}
	return "", fmt.Errorf("all mirrors failed: %w", lastErr)
}

func downloadOne(uri, dest string) error {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	req, err := retryablehttp.NewRequest("GET", uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "flowstack-installer")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http error: %s", resp.Status)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Extract unpacks a gzip-compressed tarball under destDir. An
// unreadable or absent archive is reported by error return after
// logging; callers decide whether the step was critical.
func Extract(archivePath, destDir string) error {
	if err := untarGz(archivePath, destDir); err != nil {
		log.Error().Str("archive", archivePath).Err(err).Msg("extraction failed")
		return err
	}
	return nil
}

// VerifySHA256 checks the file's digest against expected (hex, any case).
func VerifySHA256(path, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	exp := strings.ToLower(strings.TrimSpace(expected))
	if got != exp {
		return fmt.Errorf("sha256 mismatch: got %s want %s", got, exp)
	}
	return nil
}

func untarGz(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	if !isGzip(f) {
		return fmt.Errorf("%s: not a gzip archive", archivePath)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		dstPath := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(dstPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive member escapes destination: %s", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dstPath, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
				return err
			}
			_ = os.Symlink(hdr.Linkname, dstPath)
		default:
			// other member types are not expected in release tarballs
		}
	}
	return nil
}

// isGzip peeks the two-byte magic and rewinds.
func isGzip(f *os.File) bool {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	return hdr[0] == 0x1F && hdr[1] == 0x8B
}
