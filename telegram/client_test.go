package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendMessage(t *testing.T) {
	var gotPath, gotChatID, gotText string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotChatID = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "test-token", testLogger())
	if err := c.SendMessage(context.Background(), 123, "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotChatID != "123" || gotText != "hello" {
		t.Errorf("form = (%q, %q), want (123, hello)", gotChatID, gotText)
	}
}

// TestSendMessageDeadChat verifies a dead chat is reported without
// retrying.
func TestSendMessageDeadChat(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "t", testLogger())
	err := c.SendMessage(context.Background(), 99, "hi")
	if err == nil {
		t.Fatal("SendMessage should fail for a dead chat")
	}
	if !IsChatNotFound(err) {
		t.Errorf("error %v is not ChatNotFoundError", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (no retries)", got)
	}
}

func TestSendMessageRetriesTransientFailure(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"ok":false,"description":"Bad Gateway"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "t", testLogger())
	if err := c.SendMessage(context.Background(), 5, "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("offset"); got != "7" {
			t.Errorf("offset = %q, want 7", got)
		}
		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":7,"message":{"chat":{"id":42},"text":"/subscribe"}},
			{"update_id":8,"message":{"chat":{"id":43},"text":"hi"}}
		]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "t", testLogger())
	updates, err := c.Updates(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("Updates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Chat.ID != 42 || updates[0].Message.Text != "/subscribe" {
		t.Errorf("update[0] = %+v", updates[0])
	}
}
