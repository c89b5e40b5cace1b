package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
)

func newTestBucket(t *testing.T, maxBytes int64) *Bucket {
	t.Helper()
	b, err := NewBucket(t.TempDir(), "", "https://files.example.com/", maxBytes, nil)
	require.NoError(t, err)
	return b
}

func TestBucket_UploadDownloadDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t, 0)
	assert.Equal(t, DefaultBucket, b.Name())

	obj, err := b.Upload(ctx, "guides/reset-password.md", strings.NewReader("# Reset\n\nClick forgot password."))
	require.NoError(t, err)
	assert.Equal(t, "guides/reset-password.md", obj.Path)
	assert.Equal(t, int64(31), obj.Size)
	assert.Equal(t, "text/markdown; charset=utf-8", obj.ContentType)

	rc, info, err := b.Download(ctx, "guides/reset-password.md")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "# Reset\n\nClick forgot password.", string(data))
	assert.Equal(t, obj.Size, info.Size)

	require.NoError(t, b.Delete(ctx, "guides/reset-password.md"))
	require.NoError(t, b.Delete(ctx, "guides/reset-password.md"))

	_, _, err = b.Download(ctx, "guides/reset-password.md")
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestBucket_UploadDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t, 0)

	_, err := b.Upload(ctx, "faq.txt", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = b.Upload(ctx, "faq.txt", strings.NewReader("v2"))
	assert.True(t, apperrors.IsConflictError(err))
}

func TestBucket_UploadTooLarge(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t, 4)

	_, err := b.Upload(ctx, "big.txt", strings.NewReader("12345"))
	assert.True(t, apperrors.IsValidationError(err))

	objects, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, objects, "partial upload must be removed")

	_, err = b.Upload(ctx, "small.txt", strings.NewReader("1234"))
	assert.NoError(t, err)
}

func TestBucket_List(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t, 0)

	for _, p := range []string{"billing/invoices.md", "account/2fa.txt", "billing/refunds.md"} {
		_, err := b.Upload(ctx, p, strings.NewReader(p))
		require.NoError(t, err)
	}

	all, err := b.List(ctx, "")
	require.NoError(t, err)
	paths := make([]string, len(all))
	for i, o := range all {
		paths[i] = o.Path
	}
	assert.Equal(t, []string{"account/2fa.txt", "billing/invoices.md", "billing/refunds.md"}, paths)

	billing, err := b.List(ctx, "billing/")
	require.NoError(t, err)
	assert.Len(t, billing, 2)
}

func TestBucket_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	b := newTestBucket(t, 0)

	// Paths are rooted at the bucket; ".." cannot climb out.
	obj, err := b.Upload(ctx, "../../etc/passwd.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd.txt", obj.Path)

	for _, p := range []string{"", "/", ".hidden", "docs/.env"} {
		_, err := b.Upload(ctx, p, strings.NewReader("x"))
		assert.True(t, apperrors.IsValidationError(err), p)
	}
}

func TestBucket_PublicURL(t *testing.T) {
	b := newTestBucket(t, 0)
	assert.Equal(t, "https://files.example.com/knowledge_base/guides/reset%20password.md", b.PublicURL("guides/reset password.md"))
}
