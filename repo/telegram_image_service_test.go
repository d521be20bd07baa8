package repo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageService_FileURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/getFile", r.URL.Path)
		assert.Equal(t, "file-1", r.URL.Query().Get("file_id"))
		fmt.Fprint(w, `{"ok": true, "result": {"file_id": "file-1", "file_size": 10, "file_path": "documents/file_1.webp"}}`)
	}))
	defer srv.Close()

	s := NewImageService("TOKEN")
	s.BaseURL = srv.URL + "/bot"

	fileURL, err := s.FileURL(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/file/botTOKEN/documents/file_1.webp", fileURL)
}

func TestImageService_FileURLNotOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok": false}`)
	}))
	defer srv.Close()

	s := NewImageService("TOKEN")
	s.BaseURL = srv.URL + "/bot"

	_, err := s.FileURL(context.Background(), "file-1")
	assert.Error(t, err)
}
