package router

import (
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

// FromProxyRequest adapts a REST API (v1) event; the user comes from the Cognito authorizer claims
func FromProxyRequest(event events.APIGatewayProxyRequest) (*Request, error) {
	body, err := decodeBody(event.Body, event.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:  event.HTTPMethod,
		Path:    event.Path,
		Body:    body,
		Headers: event.Headers,
		Query:   event.QueryStringParameters,
		UserID:  proxyUserID(event.RequestContext.Authorizer),
	}, nil
}

func proxyUserID(authorizer map[string]interface{}) string {
	claims, ok := authorizer["claims"].(map[string]interface{})
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// ToProxyResponse converts a Response for a REST API (v1) integration
func ToProxyResponse(resp Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}
}

// FromV2Request adapts an HTTP API (v2) event
func FromV2Request(event events.APIGatewayV2HTTPRequest) (*Request, error) {
	body, err := decodeBody(event.Body, event.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method:  event.RequestContext.HTTP.Method,
		Path:    event.RawPath,
		Body:    body,
		Headers: event.Headers,
		Query:   event.QueryStringParameters,
	}
	if auth := event.RequestContext.Authorizer; auth != nil && auth.JWT != nil {
		req.UserID = auth.JWT.Claims["sub"]
	}
	return req, nil
}

// ToV2Response converts a Response for an HTTP API (v2) integration
func ToV2Response(resp Response) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}
}

func decodeBody(body string, isBase64 bool) ([]byte, error) {
	if !isBase64 {
		return []byte(body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 body: %w", err)
	}
	return decoded, nil
}
