// controllers/page_controller_test.go
package controllers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
)

// TestHealth tests the Health function
func TestHealth(t *testing.T) {
	router := setupTestRouter()
	router.GET("/health", Health)

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String(), "Unexpected response from /health endpoint")
}

func TestGetQRCode_Success(t *testing.T) {
	var gotContent string
	var gotSize int
	pc := &PageController{
		ApplicationURL: "http://panel.local:8080",
		Encode: func(content string, _ qrcode.RecoveryLevel, size int) ([]byte, error) {
			gotContent, gotSize = content, size
			return []byte("png"), nil
		},
	}
	router := setupTestRouter()
	router.GET("/qrcode", pc.GetQRCode)

	req, _ := http.NewRequest("GET", "/qrcode", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png", w.Body.String())
	assert.Equal(t, "http://panel.local:8080", gotContent)
	assert.Equal(t, defaultQRSize, gotSize)
}

func TestGetQRCode_CustomSize(t *testing.T) {
	var gotSize int
	pc := &PageController{
		ApplicationURL: "http://panel.local",
		Encode: func(_ string, _ qrcode.RecoveryLevel, size int) ([]byte, error) {
			gotSize = size
			return []byte("png"), nil
		},
	}
	router := setupTestRouter()
	router.GET("/qrcode", pc.GetQRCode)

	for _, tc := range []struct {
		query string
		code  int
	}{
		{"?size=128", http.StatusOK},
		{"?size=0", http.StatusBadRequest},
		{"?size=big", http.StatusBadRequest},
		{"?size=5000", http.StatusBadRequest},
	} {
		req, _ := http.NewRequest("GET", "/qrcode"+tc.query, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, tc.code, w.Code, tc.query)
	}
	assert.Equal(t, 128, gotSize)
}

func TestGetQRCode_EncoderFailure(t *testing.T) {
	pc := &PageController{
		ApplicationURL: "http://panel.local",
		Encode: func(string, qrcode.RecoveryLevel, int) ([]byte, error) {
			return nil, errors.New("boom")
		},
	}
	router := setupTestRouter()
	router.GET("/qrcode", pc.GetQRCode)

	req, _ := http.NewRequest("GET", "/qrcode", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "QR generation failed", w.Body.String())
}

func TestGetQRCode_NoApplicationURL(t *testing.T) {
	router := setupTestRouter()
	router.GET("/qrcode", NewPageController("").GetQRCode)

	req, _ := http.NewRequest("GET", "/qrcode", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
