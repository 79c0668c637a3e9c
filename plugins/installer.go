package plugins

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

func archiveURL(repository, name, version string) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s.tar.gz", strings.TrimSuffix(repository, "/"), name, version, name, version)
}

func validComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// unpack extracts a gzip compressed tar archive into dst. Entries other
// than regular files and directories are skipped.
func unpack(r io.Reader, dst string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}

		if errors.Is(err, tar.ErrInsecurePath) {
			return backoff.Permanent(fmt.Errorf("%w: %s", errUnsafePath, h.Name))
		}

		if err != nil {
			return err
		}

		name := filepath.FromSlash(strings.TrimPrefix(h.Name, "./"))
		if name == "" || name == "." {
			continue
		}

		if !filepath.IsLocal(name) {
			return backoff.Permanent(fmt.Errorf("%w: %s", errUnsafePath, h.Name))
		}

		target := filepath.Join(dst, name)
		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, h.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			log.Warnf("skipping %s in plugin archive, unsupported type %c", h.Name, h.Typeflag)
		}
	}
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0o400)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func (r *Registry) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	rsp, err := r.options.Client.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()

	switch {
	case rsp.StatusCode == http.StatusOK:
	case rsp.StatusCode >= 400 && rsp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("failed to download %s: %s", url, rsp.Status))
	default:
		return fmt.Errorf("failed to download %s: %s", url, rsp.Status)
	}

	return unpack(rsp.Body, dst)
}

// install downloads and unpacks a plugin into dir. The archive is unpacked
// into a temporary directory next to dir, and renamed when complete.
func (r *Registry) install(ctx context.Context, name, version, dir string) error {
	if r.options.Repository == "" {
		return errNoRepository
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}

	url := archiveURL(r.options.Repository, name, version)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.options.RetryInterval

	tmp, err := backoff.Retry(ctx, func() (string, error) {
		tmp, err := os.MkdirTemp(parent, "."+version+"-")
		if err != nil {
			return "", backoff.Permanent(err)
		}

		if err := r.download(ctx, url, tmp); err != nil {
			os.RemoveAll(tmp)
			return "", err
		}

		return tmp, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.options.MaxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warnf("failed to install plugin %s@%s, retrying in %v: %v", name, version, next, err)
		}),
	)

	if err != nil {
		return err
	}

	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		if _, serr := os.Stat(dir); serr == nil {
			// installed concurrently by another process
			return nil
		}

		return err
	}

	r.options.Metrics.IncCounter(KeyInstalled)
	log.Infof("plugin %s@%s installed from %s", name, version, url)
	return nil
}

func dirExists(dir string) (bool, error) {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	case !info.IsDir():
		return false, fmt.Errorf("%s is not a directory", dir)
	default:
		return true, nil
	}
}
