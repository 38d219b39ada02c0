package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/R3E-Network/resource-broker/internal/gateway"
)

// encodeResponse renders a gateway.Response as a full HTTP/1.1 message,
// grounded on original_source/backend/gateway/response_formats.go's
// Response.get_bytes (statusCode + payload JSON body, Connection: close).
func encodeResponse(resp gateway.Response) []byte {
	body, err := json.MarshalIndent(resp.Payload, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}

	header := fmt.Sprintf("HTTP/1.1 %d %s\r\n", resp.StatusCode, statusText(resp.StatusCode))
	header += fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123))
	header += "Server: resource-broker\r\n"
	header += fmt.Sprintf("Content-Length: %d\r\n", len(body))
	header += "Connection: close\r\n"
	header += "Content-Type: application/json\r\n"

	return append([]byte(header+"\r\n"), body...)
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "BAD_REQUEST"
	case 401:
		return "UNAUTHORIZED"
	case 402:
		return "PAYMENT_REQUIRED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	default:
		return "SEE_BODY"
	}
}
