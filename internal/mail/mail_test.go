package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// pointResendAt redirects the SDK at a local test server.
func pointResendAt(t *testing.T, c *Client, srv *httptest.Server) {
	t.Helper()
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	c.resend.BaseURL = base
}

func TestSendReviewEmailPostsToResend(t *testing.T) {
	var gotAuth, gotPath string
	var gotPayload struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("unmarshal email payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer srv.Close()

	client := New("re_test_key", "DocuInsight", "noreply@docuinsight.ai")
	pointResendAt(t, client, srv)

	err := client.SendReviewEmail(context.Background(), ReviewEmail{
		SenderName:     "Ada Lovelace",
		SenderEmail:    "ada@example.com",
		RecipientName:  "Grace Hopper",
		RecipientEmail: "grace@example.com",
		DocumentLink:   "https://app.example.com/sign/abc",
		Message:        "Please review the attached agreement.",
		SignatureLine:  "The DocuInsight Team",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotAuth != "Bearer re_test_key" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
	if gotPath != "/emails" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotPayload.From != "DocuInsight <noreply@docuinsight.ai>" {
		t.Fatalf("unexpected from: %q", gotPayload.From)
	}
	if len(gotPayload.To) != 1 || gotPayload.To[0] != "grace@example.com" {
		t.Fatalf("unexpected to: %v", gotPayload.To)
	}
	if gotPayload.Subject != "Ada Lovelace sent you a document to review and sign" {
		t.Fatalf("unexpected subject: %q", gotPayload.Subject)
	}
	for _, want := range []string{"Grace Hopper", "https://app.example.com/sign/abc", "REVIEW DOCUMENT"} {
		if !strings.Contains(gotPayload.HTML, want) {
			t.Fatalf("rendered email missing %q", want)
		}
	}
}

func TestSendReviewEmailReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid to address"}`))
	}))
	defer srv.Close()

	client := New("re_test_key", "DocuInsight", "noreply@docuinsight.ai")
	pointResendAt(t, client, srv)

	err := client.SendReviewEmail(context.Background(), ReviewEmail{RecipientEmail: "bad"})
	if err == nil {
		t.Fatalf("expected error for 4xx response")
	}
}

func TestRenderReviewEmailEscapesHTML(t *testing.T) {
	html, err := renderReviewEmail(ReviewEmail{
		RecipientName: `<script>alert("x")</script>`,
		Message:       "hi",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("recipient-controlled fields must be escaped")
	}
}
