package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/pagesnap/models"
)

func sampleReport() *models.BatchReport {
	return &models.BatchReport{
		GeneratedAt: time.Now().UTC(),
		Total:       2,
		Succeeded:   1,
		Failed:      1,
	}
}

func TestDeliver_SignsPayload(t *testing.T) {
	const secret = "s3cret"
	var gotSig string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Pagesnap-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := &Event{Type: "batch.completed", Timestamp: 42, Report: sampleReport()}
	if err := Deliver(context.Background(), srv.URL, secret, event); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.Type != "batch.completed" {
		t.Errorf("event type = %q", decoded.Type)
	}
	if decoded.Report == nil || decoded.Report.Total != 2 {
		t.Errorf("report payload missing or wrong: %+v", decoded.Report)
	}
}

func TestDeliver_NoSignatureWithoutSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Pagesnap-Signature")
	}))
	defer srv.Close()

	event := &Event{Type: "batch.completed", Report: sampleReport()}
	if err := Deliver(context.Background(), srv.URL, "", event); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if gotSig != "" {
		t.Errorf("unexpected signature header %q", gotSig)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	event := &Event{Type: "batch.completed", Report: sampleReport()}
	if err := Deliver(context.Background(), srv.URL, "", event); err == nil {
		t.Fatal("expected error for 5xx response")
	}
}

func TestNotifyCompleted_EmptyURLIsNoop(t *testing.T) {
	// Must return immediately without attempting delivery.
	done := make(chan struct{})
	go func() {
		NotifyCompleted(context.Background(), "", "secret", sampleReport())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyCompleted with empty URL did not return")
	}
}
