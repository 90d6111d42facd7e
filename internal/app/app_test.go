package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/bigtable/bttest"
	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/url-shortener-bigtable/internal/config"
)

type AppTestSuite struct {
	suite.Suite
	btSrv  *bttest.Server
	app    *App
	server *httptest.Server
	e      *httpexpect.Expect
}

func (suite *AppTestSuite) SetupSuite() {
	var err error

	suite.btSrv, err = bttest.NewServer("localhost:0")
	if err != nil {
		suite.T().Fatalf("Failed to start bttest server: %v", err)
	}
	suite.T().Cleanup(suite.btSrv.Close)

	cfg := &config.Config{
		ShortCodeLength: 7,
		ShortURLBase:    "https://sho.rt",
		Storage:         config.Storage{Driver: config.DriverBigtable},
		Bigtable: config.Bigtable{
			Project:      "test-project",
			Instance:     "test-instance",
			Table:        "team2_url_shortener",
			EmulatorHost: suite.btSrv.Addr,
			CreateTable:  true,
		},
	}

	logger := httplog.NewLogger("", httplog.Options{Writer: io.Discard})

	suite.app, err = New(context.Background(), cfg, logger)
	if err != nil {
		suite.T().Fatalf("Failed to create app: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := suite.app.Close(); err != nil {
			suite.T().Errorf("Failed to close app: %v", err)
		}
	})

	suite.server = httptest.NewServer(suite.app.Handler())
	suite.T().Cleanup(suite.server.Close)

	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *AppTestSuite) TestURLLifecycle() {
	const longURL = "https://example.com/very/long/path"

	resp := suite.e.POST("/api/shorten").
		WithQuery("url", longURL).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	id := resp.Value("shortId").String().Raw()
	suite.Len(id, 7)
	resp.HasValue("shortUrl", "https://sho.rt/api/"+id)

	suite.e.GET("/api/{id}/stats", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("originalUrl", longURL).
		HasValue("clickCount", 0)

	for want := 1; want <= 2; want++ {
		suite.e.GET("/api/{id}", id).
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual(longURL)

		suite.e.GET("/api/{id}/stats", id).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("clickCount", want)
	}

	suite.e.DELETE("/api/{id}", id).
		Expect().
		Status(http.StatusOK).
		JSON().Object().
		HasValue("message", "URL successfully deleted")

	suite.e.GET("/api/{id}", id).
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusNotFound).
		JSON().Object().
		HasValue("error", "URL not found")
}

func (suite *AppTestSuite) TestUnknownID() {
	suite.e.GET("/api/{id}", "nope123").
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusNotFound)

	suite.e.DELETE("/api/{id}", "nope123").
		Expect().
		Status(http.StatusOK)
}

func (suite *AppTestSuite) TestUnsupportedProvider() {
	suite.e.GET("/oauth2/authorization/{provider}", "github").
		WithRedirectPolicy(httpexpect.DontFollowRedirects).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().
		HasValue("error", "unsupported provider")
}

func TestApp(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}
