package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/ekyc/internal/document"
)

func TestDocumentExtractSuccess(t *testing.T) {
	var gotPath string
	var gotReq struct {
		CardSide string `json:"card_side"`
		Image    []byte `json:"image"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"full_name": "JANE DOE",
			"id_number": "1234567890",
		})
	}))
	defer server.Close()

	client := NewDocumentServiceClient(server.URL, 5*time.Second, zap.NewNop())
	fields, err := client.Extract(context.Background(), []byte("raw-image"), document.SideFront)
	require.NoError(t, err)

	assert.Equal(t, "/process-id-card", gotPath)
	assert.Equal(t, "front", gotReq.CardSide)
	assert.Equal(t, []byte("raw-image"), gotReq.Image)
	assert.Equal(t, "JANE DOE", fields["full_name"])
	assert.Equal(t, "1234567890", fields["id_number"])
}

func TestDocumentExtractRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "image too blurry"})
	}))
	defer server.Close()

	client := NewDocumentServiceClient(server.URL, 5*time.Second, zap.NewNop())
	_, err := client.Extract(context.Background(), []byte("blurry"), document.SideBack)

	var rej *document.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "image too blurry", rej.Reason)
}

func TestDocumentExtractRejectionWithoutDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewDocumentServiceClient(server.URL, 5*time.Second, zap.NewNop())
	_, err := client.Extract(context.Background(), []byte("x"), document.SideFront)

	var rej *document.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "500")
}

func TestDocumentExtractTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewDocumentServiceClient(server.URL, time.Second, zap.NewNop())
	_, err := client.Extract(context.Background(), []byte("x"), document.SideFront)

	require.Error(t, err)
	var rej *document.RejectionError
	assert.False(t, errors.As(err, &rej), "a transport failure must not look like a rejection")
}
