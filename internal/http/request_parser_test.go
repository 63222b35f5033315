package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"email":"a@b.com","password":"x"}`, false},
		{"empty", ``, true},
		{"truncated", `{"email":`, true},
		{"unknown field", `{"email":"a@b.com","role":"admin"}`, true},
		{"trailing object", `{"email":"a@b.com"}{"email":"c@d.com"}`, true},
		{"too large", `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst loginRequest
			err := decodeJSON(httptest.NewRecorder(), r, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errBadRequest) {
				t.Fatalf("decode errors must map to 400, got %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		expense bool
		wantErr bool
	}{
		{"expense", true, false},
		{" Income ", false, false},
		{"EXPENSE", true, false},
		{"", false, true},
		{"transfer", false, true},
	}
	for _, tt := range tests {
		got, err := parseKind(tt.in)
		if (err != nil) != tt.wantErr || (err == nil && got != tt.expense) {
			t.Errorf("parseKind(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseIDParam(t *testing.T) {
	for value, ok := range map[string]bool{"12": true, "0": false, "-3": false, "abc": false} {
		r := httptest.NewRequest(http.MethodDelete, "/", nil)
		r.SetPathValue("id", value)
		id, err := parseIDParam(r, "id")
		if (err == nil) != ok {
			t.Errorf("parseIDParam(%q) = %d, %v", value, id, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer   xyz ", "xyz", true},
		{"Basic dXNlcg==", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		got, ok := bearerToken(r)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  Cof\x00fee\x07 \t"); got != "Coffee" {
		t.Fatalf("sanitizeInput = %q", got)
	}
}
