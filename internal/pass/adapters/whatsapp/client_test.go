package whatsapp

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
	"github.com/stretchr/testify/suite"

	"walletpass/pkg/platform/sentinel"
)

type ClientSuite struct {
	suite.Suite
	server *httptest.Server
	mux    *http.ServeMux
	client *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.mux = http.NewServeMux()
	s.server = httptest.NewServer(s.mux)
	s.client = New(s.server.URL, "v21.0", "1234", "token-abc", 5*time.Second)
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestFetchMedia() {
	s.mux.HandleFunc("GET /v21.0/media-1", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("Bearer token-abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"url":"` + s.server.URL + `/download/media-1","mime_type":"image/jpeg","id":"media-1"}`))
	})
	s.mux.HandleFunc("GET /download/media-1", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("Bearer token-abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	body, err := s.client.FetchMedia(context.Background(), "media-1")

	s.Require().NoError(err)
	s.Equal([]byte("jpeg-bytes"), body)
}

func (s *ClientSuite) TestFetchMediaMissingURL() {
	s.mux.HandleFunc("GET /v21.0/media-2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"media-2"}`))
	})

	_, err := s.client.FetchMedia(context.Background(), "media-2")

	s.ErrorContains(err, "no download url")
}

func (s *ClientSuite) TestFetchMediaNotFound() {
	s.mux.HandleFunc("GET /v21.0/media-3", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"Unsupported get request","code":100}}`))
	})

	_, err := s.client.FetchMedia(context.Background(), "media-3")

	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrNotFound))
	s.Contains(err.Error(), "Unsupported get request")
}

func (s *ClientSuite) TestSendText() {
	var got outboundMessage
	s.mux.HandleFunc("POST /v21.0/1234/messages", func(w http.ResponseWriter, r *http.Request) {
		s.Equal("application/json", r.Header.Get("Content-Type"))
		s.NoError(json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})

	err := s.client.SendText(context.Background(), "5215550001", "hola")

	s.Require().NoError(err)
	s.Equal("whatsapp", got.MessagingProduct)
	s.Equal("individual", got.RecipientType)
	s.Equal("5215550001", got.To)
	s.Equal("text", got.Type)
	s.Require().NotNil(got.Text)
	s.Equal("hola", got.Text.Body)
	s.Nil(got.Document)
}

func (s *ClientSuite) TestSendDocument() {
	var got outboundMessage
	s.mux.HandleFunc("POST /v21.0/1234/messages", func(w http.ResponseWriter, r *http.Request) {
		s.NoError(json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})

	err := s.client.SendDocument(context.Background(), "5215550001", "https://b.s3/passes/x.pkpass", "pass-x.pkpass", "Tu pase")

	s.Require().NoError(err)
	s.Equal("document", got.Type)
	s.Require().NotNil(got.Document)
	s.Equal("https://b.s3/passes/x.pkpass", got.Document.Link)
	s.Equal("pass-x.pkpass", got.Document.Filename)
	s.Equal("Tu pase", got.Document.Caption)
}

func (s *ClientSuite) TestSendUpstreamFailure() {
	s.mux.HandleFunc("POST /v21.0/1234/messages", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := s.client.SendText(context.Background(), "1", "x")

	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrUnavailable))
}

func TestFetchMediaTooLarge(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	mux.HandleFunc("GET /v21.0/big", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"` + server.URL + `/blob"}`))
	})
	mux.HandleFunc("GET /blob", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, maxMediaBytes+1))
	})

	_, err := New(server.URL, "v21.0", "1", "t", 5*time.Second).FetchMedia(context.Background(), "big")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}
