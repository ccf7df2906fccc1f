package server

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chirp/internal/cache"
	"chirp/internal/models"
	"chirp/internal/service"
	"chirp/internal/testutil"
	"chirp/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "upload.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCreatePost_JSON(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateUser(t, ts.db, "alice")

	resp := ts.doJSON(t, http.MethodPost, "/api/posts/create", ts.accessCookie(t, alice.ID), map[string]string{
		"title": "hello", "content": "first post",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	post := decode[models.PostResponse](t, resp)
	assert.NotZero(t, post.ID)
	assert.Equal(t, "hello", post.Title)
	assert.Nil(t, post.Image)
}

func TestCreatePost_MultipartWithImage(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateUser(t, ts.db, "alice")

	body, contentType := multipartBody(t, map[string]string{"title": "pic", "content": "look"}, testutil.PNGBytes(t, 64, 32))
	resp := ts.do(t, testRequest{
		method:      http.MethodPost,
		path:        "/api/posts/create",
		body:        body,
		contentType: contentType,
		cookie:      ts.accessCookie(t, alice.ID),
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	post := decode[models.PostResponse](t, resp)
	require.NotNil(t, post.Image)
	assert.True(t, strings.HasPrefix(*post.Image, service.MediaURL))
	assert.True(t, strings.HasSuffix(*post.Image, ".webp"))

	_, err := os.Stat(filepath.Join(ts.imageService.Dir(), strings.TrimPrefix(*post.Image, service.MediaURL)))
	assert.NoError(t, err)
}

func TestCreatePost_Validation(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateUser(t, ts.db, "alice")
	cookie := ts.accessCookie(t, alice.ID)

	tests := []struct {
		name    string
		fields  map[string]string
		image   []byte
		field   string
		message string
	}{
		{"missing title", map[string]string{"content": "c"}, nil, "title", "This field is required."},
		{"long title", map[string]string{"title": strings.Repeat("t", 256), "content": "c"}, nil, "title", "Title cannot be longer than 255 characters."},
		{"long content", map[string]string{"title": "t", "content": strings.Repeat("c", 501)}, nil, "content", "Content cannot be longer than 500 characters."},
		{"not an image", map[string]string{"title": "t", "content": "c"}, []byte("just some text"), "image", "Uploaded file must be an image."},
		{"image too large", map[string]string{"title": "t", "content": "c"}, make([]byte, 1024*1024+100), "image", "Image file size should not exceed 1MB."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields, tt.image)
			resp := ts.do(t, testRequest{
				method:      http.MethodPost,
				path:        "/api/posts/create",
				body:        body,
				contentType: contentType,
				cookie:      cookie,
			})
			require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			errBody := decode[models.ErrorResponse](t, resp)
			assert.Equal(t, tt.message, errBody.Error)
			assert.Equal(t, tt.field, errBody.Field)
		})
	}
}

func TestPostLifecycle(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateUser(t, ts.db, "alice")
	bob := testutil.CreateUser(t, ts.db, "bob")
	aliceCookie := ts.accessCookie(t, alice.ID)
	bobCookie := ts.accessCookie(t, bob.ID)

	resp := ts.doJSON(t, http.MethodPost, "/api/posts/create", aliceCookie, map[string]string{"title": "t", "content": "c"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	created := decode[models.PostResponse](t, resp)
	path := func(prefix string) string { return fmt.Sprintf("/api/posts/%s%d", prefix, created.ID) }

	resp = ts.doJSON(t, http.MethodPatch, path("update/"), aliceCookie, map[string]string{"content": "edited"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	updated := decode[models.PostResponse](t, resp)
	assert.Equal(t, "t", updated.Title)
	assert.Equal(t, "edited", updated.Content)

	resp = ts.do(t, testRequest{
		method:      http.MethodPut,
		path:        path("update/"),
		body:        strings.NewReader("title=renamed"),
		contentType: fiber.MIMEApplicationForm,
		cookie:      aliceCookie,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "renamed", decode[models.PostResponse](t, resp).Title)

	resp = ts.doJSON(t, http.MethodPatch, path("update/"), aliceCookie, map[string]string{"title": " "})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "This field may not be blank.", decode[models.ErrorResponse](t, resp).Error)

	resp = ts.doJSON(t, http.MethodPatch, path("update/"), bobCookie, map[string]string{"content": "hijack"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You do not have permission to edit this post.", decode[models.ErrorResponse](t, resp).Error)

	resp = ts.do(t, testRequest{method: http.MethodGet, path: path(""), cookie: aliceCookie})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "edited", decode[models.PostResponse](t, resp).Content)

	resp = ts.do(t, testRequest{method: http.MethodGet, path: path(""), cookie: bobCookie})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, testRequest{method: http.MethodDelete, path: path("delete/"), cookie: bobCookie})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You do not have permission to delete this post.", decode[models.ErrorResponse](t, resp).Error)

	resp = ts.do(t, testRequest{method: http.MethodDelete, path: path("delete/"), cookie: aliceCookie})
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, testRequest{method: http.MethodGet, path: path(""), cookie: aliceCookie})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Post not found", decode[models.ErrorResponse](t, resp).Error)

	resp = ts.do(t, testRequest{method: http.MethodDelete, path: path("delete/"), cookie: aliceCookie})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, testRequest{method: http.MethodGet, path: "/api/posts/abc", cookie: aliceCookie})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestFeed(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateUser(t, ts.db, "alice")
	bob := testutil.CreateUser(t, ts.db, "bob")
	carol := testutil.CreateUser(t, ts.db, "carol")
	testutil.Follow(t, ts.db, alice.ID, bob.ID)

	for i := 0; i < 3; i++ {
		testutil.CreatePost(t, ts.db, bob.ID, fmt.Sprintf("bob post %d", i))
	}
	testutil.CreatePost(t, ts.db, carol.ID, "carol post")
	cookie := ts.accessCookie(t, alice.ID)

	resp := ts.do(t, testRequest{method: http.MethodGet, path: "/api/posts/feed?page_size=2", cookie: cookie})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	page := decode[models.Page[models.FeedPost]](t, resp)
	assert.Equal(t, int64(3), page.Count)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Results, 2)
	for _, p := range page.Results {
		assert.Equal(t, "bob", p.User)
	}

	resp = ts.do(t, testRequest{method: http.MethodGet, path: "/api/posts/feed?search=carol", cookie: cookie})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	page = decode[models.Page[models.FeedPost]](t, resp)
	assert.Zero(t, page.Count)
	assert.NotNil(t, page.Results)

	resp = ts.do(t, testRequest{method: http.MethodGet, path: "/api/posts/feed", cookie: ts.accessCookie(t, carol.ID)})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[models.Page[models.FeedPost]](t, resp).Results)
}

func TestToggleLike(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateUser(t, ts.db, "alice")
	bob := testutil.CreateUser(t, ts.db, "bob")
	post := testutil.CreatePost(t, ts.db, bob.ID, "likeable")
	cookie := ts.accessCookie(t, alice.ID)
	require.NoError(t, ts.mr.Set(cache.LikesKey(post.ID), "9"))

	resp := ts.do(t, testRequest{
		method:      http.MethodPost,
		path:        "/api/posts/like",
		body:        strings.NewReader(fmt.Sprintf("post=%d", post.ID)),
		contentType: fiber.MIMEApplicationForm,
		cookie:      cookie,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	like := decode[models.LikeResponse](t, resp)
	assert.Equal(t, alice.ID, like.User)
	assert.Equal(t, post.ID, like.Post)
	assert.False(t, ts.mr.Exists(cache.LikesKey(post.ID)))
	assert.Equal(t, []string{worker.TypeRefreshLikesForUser}, ts.queuedJobs(t))

	resp = ts.doJSON(t, http.MethodPost, "/api/posts/like", cookie, map[string]any{"post": post.ID})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Like removed successfully.", decode[map[string]string](t, resp)["detail"])
	assert.Len(t, ts.queuedJobs(t), 2)
}

func TestToggleLike_Rejections(t *testing.T) {
	ts := newTestServer(t)
	alice := testutil.CreateUser(t, ts.db, "alice")
	gone := testutil.CreatePost(t, ts.db, alice.ID, "gone")
	require.NoError(t, ts.db.Model(gone).Update("deleted_post", true).Error)
	cookie := ts.accessCookie(t, alice.ID)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing", map[string]any{}, fiber.StatusBadRequest},
		{"not a number", map[string]any{"post": "abc"}, fiber.StatusBadRequest},
		{"unknown", map[string]any{"post": 9999}, fiber.StatusNotFound},
		{"deleted", map[string]any{"post": gone.ID}, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.doJSON(t, http.MethodPost, "/api/posts/like", cookie, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Empty(t, ts.queuedJobs(t))
}
