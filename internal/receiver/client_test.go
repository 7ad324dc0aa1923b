package receiver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pixrelay/pixrelay/internal/channel"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(nil, baseURL, "shared-secret")
	require.NoError(t, err)
	return client
}

func sampleMessage() channel.InboundMessage {
	return channel.InboundMessage{
		ID:        "msg-1",
		AuthorID:  "user-1",
		ChannelID: "chan-1",
		Content:   "hello there",
	}
}

func TestForwardTextWhitespaceSkipsRequest(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/api/receiver/image")
	msg := sampleMessage()
	msg.Content = "   \n\t  "

	result, err := client.ForwardText(context.Background(), msg)
	require.NoError(t, err)
	require.False(t, result.OK)
	require.EqualValues(t, 0, requests.Load())
}

func TestForwardTextSendsProvenanceFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/receiver/image", r.URL.Path)
		require.Equal(t, "shared-secret", r.Header.Get("x-receiver-token"))
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "hello there", r.FormValue("text"))
		require.Equal(t, "discord", r.FormValue("source"))
		require.Equal(t, "msg-1", r.FormValue("discordMessageId"))
		require.Equal(t, "chan-1", r.FormValue("discordChannelId"))
		require.Equal(t, "user-1", r.FormValue("discordAuthorId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/api/receiver/image")
	result, err := client.ForwardText(context.Background(), sampleMessage())
	require.NoError(t, err)
	require.True(t, result.OK)
}

func TestForwardFailureModesAreUniform(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx with json body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`{"success":false,"error":"upstream"}`))
			},
		},
		{
			name: "2xx with non-json body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>ok</html>"))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := newTestClient(t, srv.URL+"/api/receiver/image")
			result, err := client.ForwardText(context.Background(), sampleMessage())
			require.NoError(t, err)
			require.False(t, result.OK)
		})
	}
}

func TestLookupEmailCollapsesAllFailures(t *testing.T) {
	t.Parallel()

	t.Run("unreachable receiver", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // nothing is listening anymore

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		require.Empty(t, client.LookupEmail(context.Background(), "user-1"))
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		require.Empty(t, client.LookupEmail(context.Background(), "user-1"))
	})

	t.Run("unregistered user", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"registered":false}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		require.Empty(t, client.LookupEmail(context.Background(), "user-1"))
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("registered"))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		require.Empty(t, client.LookupEmail(context.Background(), "user-1"))
	})
}

func TestLookupEmailRegistered(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/receiver/register/status", r.URL.Path)
		require.Equal(t, "user-1", r.URL.Query().Get("discordId"))
		require.Equal(t, "shared-secret", r.Header.Get("x-receiver-token"))
		_, _ = w.Write([]byte(`{"success":true,"registered":true,"user":{"email":"alice@example.com","registeredAt":"2026-01-02T03:04:05Z"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/api/receiver/image")
	require.Equal(t, "alice@example.com", client.LookupEmail(context.Background(), "user-1"))
}

func TestInitiate(t *testing.T) {
	t.Parallel()

	t.Run("success returns auth url", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/receiver/oauth/initiate", r.URL.Path)
			require.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"success":true,"authUrl":"https://auth.example/start?x=1"}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		authURL, err := client.Initiate(context.Background(), "user-1", "alice")
		require.NoError(t, err)
		require.Equal(t, "https://auth.example/start?x=1", authURL)
	})

	t.Run("failure echoes server error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"error":"already linked"}`))
		}))
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		_, err := client.Initiate(context.Background(), "user-1", "alice")
		require.EqualError(t, err, "already linked")
	})
}

func TestForwardAttachment(t *testing.T) {
	t.Parallel()

	t.Run("registered author uploads multipart", func(t *testing.T) {
		t.Parallel()

		var uploads atomic.Int64
		mux := http.NewServeMux()
		mux.HandleFunc("/api/receiver/register/status", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"registered":true,"user":{"email":"alice@example.com"}}`))
		})
		mux.HandleFunc("/cdn/pic.png", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		})
		var srvURL string
		mux.HandleFunc("/api/receiver/image", func(w http.ResponseWriter, r *http.Request) {
			uploads.Add(1)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			require.Equal(t, "discord", r.FormValue("source"))
			require.Equal(t, "msg-1", r.FormValue("discordMessageId"))
			require.Equal(t, "chan-1", r.FormValue("discordChannelId"))
			require.Equal(t, "user-1", r.FormValue("discordAuthorId"))
			require.Equal(t, "alice@example.com", r.FormValue("userEmail"))

			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			require.Equal(t, "pic.png", header.Filename)
			require.Equal(t, "image/png", header.Header.Get("Content-Type"))

			_, _ = w.Write([]byte(`{"success":true}`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		srvURL = srv.URL

		client := newTestClient(t, srvURL+"/api/receiver/image")
		result, err := client.ForwardAttachment(context.Background(), sampleMessage(), channel.Attachment{
			URL:         srvURL + "/cdn/pic.png",
			ContentType: "image/png",
			Name:        "pic.png",
		})
		require.NoError(t, err)
		require.True(t, result.OK)
		require.EqualValues(t, 1, uploads.Load())
	})

	t.Run("unregistered author is gated", func(t *testing.T) {
		t.Parallel()

		var uploads atomic.Int64
		mux := http.NewServeMux()
		mux.HandleFunc("/api/receiver/register/status", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"registered":false}`))
		})
		mux.HandleFunc("/api/receiver/image", func(w http.ResponseWriter, r *http.Request) {
			uploads.Add(1)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		_, err := client.ForwardAttachment(context.Background(), sampleMessage(), channel.Attachment{
			URL:         srv.URL + "/cdn/pic.png",
			ContentType: "image/png",
			Name:        "pic.png",
		})
		require.ErrorIs(t, err, ErrNotRegistered)
		require.EqualValues(t, 0, uploads.Load())
	})

	t.Run("failed download aborts upload", func(t *testing.T) {
		t.Parallel()

		var uploads atomic.Int64
		mux := http.NewServeMux()
		mux.HandleFunc("/api/receiver/register/status", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":true,"registered":true,"user":{"email":"alice@example.com"}}`))
		})
		mux.HandleFunc("/cdn/pic.png", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		mux.HandleFunc("/api/receiver/image", func(w http.ResponseWriter, r *http.Request) {
			uploads.Add(1)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		client := newTestClient(t, srv.URL+"/api/receiver/image")
		_, err := client.ForwardAttachment(context.Background(), sampleMessage(), channel.Attachment{
			URL:         srv.URL + "/cdn/pic.png",
			ContentType: "image/png",
			Name:        "pic.png",
		})
		require.Error(t, err)
		require.EqualValues(t, 0, uploads.Load())
	})
}
