package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"walletpass/internal/pass/handler"
	"walletpass/internal/pass/handler/mocks"
	platformmetrics "walletpass/internal/platform/metrics"
	"walletpass/pkg/platform/middleware/requestid"
	"walletpass/pkg/testutil"
)

func TestRouter(t *testing.T) {
	testutil.Given(t, "the HTTP router", func(t *testing.T) {
		svc := mocks.NewMockService(gomock.NewController(t))
		h, err := handler.New(svc, "verify-me")
		require.NoError(t, err)
		router := newRouter(h, platformmetrics.New(prometheus.NewRegistry()), time.Second)

		testutil.When(t, "calling GET /health", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))

			testutil.Then(t, "it reports ok with a request id", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				assert.NotEmpty(t, rr.Header().Get(requestid.Header))
			})
		})

		testutil.When(t, "completing the webhook handshake", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet,
				"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc"))

			testutil.Then(t, "it echoes the challenge", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				assert.Equal(t, "abc", rr.Body.String())
			})
		})

		testutil.When(t, "calling GET /metrics", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

			testutil.Then(t, "it serves the prometheus exposition", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
			})
		})

		testutil.When(t, "calling an unknown route", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodDelete, "/webhook"))

			testutil.Then(t, "it responds method not allowed", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusMethodNotAllowed)
			})
		})
	})
}
