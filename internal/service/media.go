package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/model"
)

const defaultMediaFilename = "file"

// MediaResolver turns media descriptors into attachable payloads. Sources are
// tried in the order local path, remote URL, inline data. A URL that is not an
// absolute http(s) address is skipped in favor of the next source.
type MediaResolver struct {
	client   *http.Client
	maxBytes int64
}

func NewMediaResolver(fetchTimeout time.Duration, maxBytes int64) *MediaResolver {
	return &MediaResolver{
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: maxBytes,
	}
}

func (r *MediaResolver) Resolve(ctx context.Context, d model.MediaDescriptor) (*model.NormalizedMedia, error) {
	if d.LocalPath != "" {
		return r.resolveLocal(d)
	}
	u, urlOK := remoteURL(d.RemoteURL)
	switch {
	case urlOK:
		return r.resolveRemote(ctx, u, d)
	case d.Data != "":
		return r.resolveInline(d)
	case d.RemoteURL != "":
		return nil, apperrors.UnsupportedDescriptor().WithDetails("url must be an absolute http(s) URL")
	default:
		return nil, apperrors.UnsupportedDescriptor()
	}
}

func remoteURL(raw string) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

func (r *MediaResolver) resolveLocal(d model.MediaDescriptor) (*model.NormalizedMedia, error) {
	f, err := os.Open(d.LocalPath)
	if err != nil {
		return nil, apperrors.FetchFailed("local file", err)
	}
	defer f.Close()

	data, err := r.readLimited(f)
	if err != nil {
		return nil, apperrors.FetchFailed("local file", err)
	}

	mimeType := d.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(d.LocalPath))
	}
	filename := d.Filename
	if filename == "" {
		filename = filepath.Base(d.LocalPath)
	}
	return normalized(mimeType, filename, data), nil
}

func (r *MediaResolver) resolveRemote(ctx context.Context, u *url.URL, d model.MediaDescriptor) (*model.NormalizedMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperrors.FetchFailed(u.Host, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.FetchFailed(u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.FetchFailed(u.Host, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := r.readLimited(resp.Body)
	if err != nil {
		return nil, apperrors.FetchFailed(u.Host, err)
	}

	mimeType := d.MimeType
	if mimeType == "" {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			if parsed, _, err := mime.ParseMediaType(ct); err == nil {
				mimeType = parsed
			}
		}
	}
	filename := d.Filename
	if filename == "" {
		filename = path.Base(u.Path)
		if filename == "/" || filename == "." {
			filename = ""
		}
	}

	log.Debug().
		Str("host", u.Host).
		Int("bytes", len(data)).
		Str("mimetype", mimeType).
		Msg("remote media fetched")

	return normalized(mimeType, filename, data), nil
}

func (r *MediaResolver) resolveInline(d model.MediaDescriptor) (*model.NormalizedMedia, error) {
	payload := strings.TrimSpace(d.Data)
	mimeType := d.MimeType

	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, apperrors.DecodeFailed(fmt.Errorf("malformed data URL"))
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		payload = body
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	if err != nil {
		return nil, apperrors.DecodeFailed(err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, apperrors.DecodeFailed(fmt.Errorf("payload exceeds %d bytes", r.maxBytes))
	}

	return normalized(mimeType, d.Filename, data), nil
}

func (r *MediaResolver) readLimited(src io.Reader) ([]byte, error) {
	if r.maxBytes <= 0 {
		return io.ReadAll(src)
	}
	data, err := io.ReadAll(io.LimitReader(src, r.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("media exceeds %d bytes", r.maxBytes)
	}
	return data, nil
}

func normalized(mimeType, filename string, data []byte) *model.NormalizedMedia {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if filename == "" {
		filename = defaultMediaFilename
	}
	return &model.NormalizedMedia{MimeType: mimeType, Filename: filename, Data: data}
}
