package router

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,Authorization,X-Amz-Date,X-Api-Key,X-Amz-Security-Token",
	"Access-Control-Allow-Methods": "GET,POST,PUT,PATCH,DELETE,OPTIONS",
}

func withCORS(resp Response) Response {
	headers := make(map[string]string, len(resp.Headers)+len(corsHeaders))
	for k, v := range resp.Headers {
		headers[k] = v
	}
	for k, v := range corsHeaders {
		headers[k] = v
	}
	resp.Headers = headers
	return resp
}
