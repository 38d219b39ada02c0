package reqio

import (
	"testing"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
)

func rawPost(entity, dataJSON string) []byte {
	body := `{"entity":"` + entity + `","data":` + dataJSON + `}`
	return []byte("POST / HTTP/1.1\r\nHost: x\r\n\r\n" + body)
}

func TestParsePostRequest(t *testing.T) {
	req, err := Parse(rawPost("org.queue", `{"amount":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	if req.EntityPath() != "org.queue" {
		t.Errorf("EntityPath() = %s, want org.queue", req.EntityPath())
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestParseRejectsWrongPath(t *testing.T) {
	raw := []byte("GET /foo HTTP/1.1\r\n\r\n{}")
	_, err := Parse(raw)
	if brokererr.KindOf(err) != brokererr.Validation {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestParseRejectsBadMethod(t *testing.T) {
	raw := []byte("DELETE / HTTP/1.1\r\n\r\n{}")
	_, err := Parse(raw)
	if brokererr.KindOf(err) != brokererr.Validation {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	raw := []byte("POST / HTTP/1.1\r\n\r\nnot-json")
	_, err := Parse(raw)
	if brokererr.KindOf(err) != brokererr.Validation {
		t.Fatalf("expected Validation error, got %v", err)
	}
}

func TestNextRouteAdvancesAndExhausts(t *testing.T) {
	req, err := Parse(rawPost("org.queue", `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := req.NextRoute()
	if err != nil || first != "org" {
		t.Fatalf("NextRoute() = %q, %v, want org, nil", first, err)
	}
	second, err := req.NextRoute()
	if err != nil || second != "queue" {
		t.Fatalf("NextRoute() = %q, %v, want queue, nil", second, err)
	}
	if req.CurrentName() != "queue" {
		t.Errorf("CurrentName() = %s, want queue", req.CurrentName())
	}

	_, err = req.NextRoute()
	if brokererr.KindOf(err) != brokererr.RouteDoesNotExist {
		t.Errorf("expected RouteDoesNotExist at bottom of request, got %v", err)
	}
}

func TestValidateRejectsIllegalPath(t *testing.T) {
	req, err := Parse(rawPost(".bad", `{}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if err := req.Validate(); brokererr.KindOf(err) != brokererr.Validation {
		t.Errorf("expected Validation error for illegal path, got %v", err)
	}
}

func TestValidateRequiresRecursiveOnGet(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n\r\n" + `{"entity":"org.queue"}`)
	req, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if err := req.Validate(); brokererr.KindOf(err) != brokererr.Validation {
		t.Errorf("expected Validation error for missing recursive flag, got %v", err)
	}
}
