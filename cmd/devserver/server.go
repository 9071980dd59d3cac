package main

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/bootstrap"
	"github.com/pedro-hbl/ledger-lambdas/internal/ledger"
	"github.com/pedro-hbl/ledger-lambdas/internal/metrics"
	"github.com/pedro-hbl/ledger-lambdas/internal/router"
	"github.com/pedro-hbl/ledger-lambdas/internal/rows"
)

// server fronts the three Lambda routers with one local HTTP listener
type server struct {
	rows      *rows.Handler
	ledger    *ledger.Handler
	sink      metrics.Sink
	jwtSecret []byte
	log       *zap.Logger
}

func (s *server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	crud := s.serve("rows-crud", rows.Options(), s.rows.RegisterCRUD)
	e.Any("/rows", crud)
	e.Any("/rows/*", crud)
	e.Any("/query", s.serve("rows-query", rows.Options(), s.rows.RegisterQuery))
	e.Any("/v1/*", s.serve("ledger-api", ledger.Options(), s.ledger.Register))

	return e
}

// serve builds a fresh router per request, as each Lambda invocation does
func (s *server) serve(function string, base router.Options, register func(*router.Router)) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := router.New(bootstrap.RouterOptions(base, function, s.sink, false), s.log.Named(function))
		register(r)

		req, err := s.toRequest(c)
		if err != nil {
			return writeResponse(c, r.Reject(http.StatusBadRequest, "Invalid body encoding", err))
		}

		return writeResponse(c, r.Serve(c.Request().Context(), req))
	}
}

func (s *server) toRequest(c echo.Context) (*router.Request, error) {
	httpReq := c.Request()

	body, err := io.ReadAll(httpReq.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(httpReq.Header))
	for name := range httpReq.Header {
		headers[name] = httpReq.Header.Get(name)
	}
	query := make(map[string]string)
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	req := &router.Request{
		Method:  httpReq.Method,
		Path:    httpReq.URL.Path,
		Body:    body,
		Headers: headers,
		Query:   query,
	}

	if authz := httpReq.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(authz, "Bearer ") {
		sub, err := s.subject(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			// The router answers 401 for routes that need a user
			s.log.Warn("Ignoring bearer token", zap.Error(err))
		}
		req.UserID = sub
	}

	return req, nil
}

// subject validates an HS256 token and returns its sub claim
func (s *server) subject(raw string) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("DEV_JWT_SECRET is not set")
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no sub claim")
	}
	return sub, nil
}

func writeResponse(c echo.Context, resp router.Response) error {
	for name, value := range resp.Headers {
		c.Response().Header().Set(name, value)
	}
	c.Response().WriteHeader(resp.StatusCode)
	if resp.Body == "" {
		return nil
	}
	_, err := io.WriteString(c.Response(), resp.Body)
	return err
}
