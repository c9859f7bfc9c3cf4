package service

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/wagate/internal/errors"
	"github.com/openclaw/wagate/internal/model"
)

func newTestResolver() *MediaResolver {
	return NewMediaResolver(5*time.Second, 1024)
}

func TestMediaResolver_Local(t *testing.T) {
	ctx := context.Background()

	t.Run("reads file and infers mimetype from extension", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "photo.png")
		require.NoError(t, os.WriteFile(p, []byte("png-bytes"), 0o600))

		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{LocalPath: p})
		require.NoError(t, err)
		assert.Equal(t, "image/png", media.MimeType)
		assert.Equal(t, "photo.png", media.Filename)
		assert.Equal(t, []byte("png-bytes"), media.Data)
	})

	t.Run("keeps caller supplied mimetype and filename", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "upload-123")
		require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o600))

		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{
			LocalPath: p,
			MimeType:  "application/pdf",
			Filename:  "invoice.pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", media.MimeType)
		assert.Equal(t, "invoice.pdf", media.Filename)
	})

	t.Run("missing file is FETCH_FAILED", func(t *testing.T) {
		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{LocalPath: "/nonexistent/file.png"})
		assert.Equal(t, apperrors.ErrCodeFetchFailed, apperrors.GetCode(err))
	})

	t.Run("oversized file is FETCH_FAILED", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "big.bin")
		require.NoError(t, os.WriteFile(p, make([]byte, 2048), 0o600))

		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{LocalPath: p})
		assert.Equal(t, apperrors.ErrCodeFetchFailed, apperrors.GetCode(err))
	})

	t.Run("local path takes precedence over url and inline data", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "a.png")
		require.NoError(t, os.WriteFile(p, []byte("local"), 0o600))

		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{
			LocalPath: p,
			RemoteURL: "http://127.0.0.1:1/never",
			Data:      base64.StdEncoding.EncodeToString([]byte("inline")),
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("local"), media.Data)
	})
}

func TestMediaResolver_Remote(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/images/cat.jpg":
			w.Header().Set("Content-Type", "image/jpeg; charset=binary")
			w.Write([]byte("jpeg-bytes"))
		case "/plain":
			w.Write([]byte("hello world"))
		case "/big":
			w.Write([]byte(strings.Repeat("x", 4096)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	t.Run("uses content type and url path filename", func(t *testing.T) {
		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{RemoteURL: server.URL + "/images/cat.jpg"})
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", media.MimeType)
		assert.Equal(t, "cat.jpg", media.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), media.Data)
	})

	t.Run("sniffs mimetype when server omits it", func(t *testing.T) {
		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{RemoteURL: server.URL + "/plain"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(media.MimeType, "text/plain"))
		assert.Equal(t, "plain", media.Filename)
	})

	t.Run("url takes precedence over inline data", func(t *testing.T) {
		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{
			RemoteURL: server.URL + "/plain",
			Data:      base64.StdEncoding.EncodeToString([]byte("inline")),
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("hello world"), media.Data)
	})

	t.Run("non 2xx is FETCH_FAILED", func(t *testing.T) {
		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{RemoteURL: server.URL + "/missing"})
		assert.Equal(t, apperrors.ErrCodeFetchFailed, apperrors.GetCode(err))
	})

	t.Run("oversized body is FETCH_FAILED", func(t *testing.T) {
		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{RemoteURL: server.URL + "/big"})
		assert.Equal(t, apperrors.ErrCodeFetchFailed, apperrors.GetCode(err))
	})

	t.Run("non http scheme is UNSUPPORTED_DESCRIPTOR", func(t *testing.T) {
		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{RemoteURL: "file:///etc/passwd"})
		assert.Equal(t, apperrors.ErrCodeUnsupportedDescriptor, apperrors.GetCode(err))
	})

	t.Run("malformed url falls through to inline data", func(t *testing.T) {
		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{
			RemoteURL: "ftp://x",
			Data:      base64.StdEncoding.EncodeToString([]byte("inline")),
			MimeType:  "text/plain",
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("inline"), media.Data)
		assert.Equal(t, "text/plain", media.MimeType)
	})

	t.Run("relative url with no other source is UNSUPPORTED_DESCRIPTOR", func(t *testing.T) {
		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{RemoteURL: "/a.png"})
		assert.Equal(t, apperrors.ErrCodeUnsupportedDescriptor, apperrors.GetCode(err))
	})

	t.Run("canceled context is FETCH_FAILED", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := newTestResolver().Resolve(canceled, model.MediaDescriptor{RemoteURL: server.URL + "/plain"})
		assert.Equal(t, apperrors.ErrCodeFetchFailed, apperrors.GetCode(err))
	})
}

func TestMediaResolver_Inline(t *testing.T) {
	ctx := context.Background()
	payload := base64.StdEncoding.EncodeToString([]byte("inline-bytes"))

	t.Run("decodes plain base64 with supplied metadata", func(t *testing.T) {
		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{
			Data:     payload,
			MimeType: "image/gif",
			Filename: "anim.gif",
		})
		require.NoError(t, err)
		assert.Equal(t, "image/gif", media.MimeType)
		assert.Equal(t, "anim.gif", media.Filename)
		assert.Equal(t, []byte("inline-bytes"), media.Data)
	})

	t.Run("reads mimetype from a data url and defaults filename", func(t *testing.T) {
		media, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{
			Data: "data:image/webp;base64," + payload,
		})
		require.NoError(t, err)
		assert.Equal(t, "image/webp", media.MimeType)
		assert.Equal(t, "file", media.Filename)
		assert.Equal(t, []byte("inline-bytes"), media.Data)
	})

	t.Run("invalid base64 is DECODE_FAILED", func(t *testing.T) {
		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{Data: "!!not base64!!", MimeType: "image/png"})
		assert.Equal(t, apperrors.ErrCodeDecodeFailed, apperrors.GetCode(err))
	})

	t.Run("data url without base64 marker is DECODE_FAILED", func(t *testing.T) {
		_, err := newTestResolver().Resolve(ctx, model.MediaDescriptor{Data: "data:text/plain,hello"})
		assert.Equal(t, apperrors.ErrCodeDecodeFailed, apperrors.GetCode(err))
	})
}

func TestMediaResolver_Unsupported(t *testing.T) {
	t.Run("empty descriptor is UNSUPPORTED_DESCRIPTOR", func(t *testing.T) {
		_, err := newTestResolver().Resolve(context.Background(), model.MediaDescriptor{MimeType: "image/png"})
		assert.Equal(t, apperrors.ErrCodeUnsupportedDescriptor, apperrors.GetCode(err))
		assert.True(t, apperrors.IsMediaResolution(apperrors.GetCode(err)))
	})
}
