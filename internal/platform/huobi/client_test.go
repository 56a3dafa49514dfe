package huobi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/tickers" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","ts":1700000000000,"data":[
			{"symbol":"btcusdt","bid":30000.5,"ask":30001.25},
			{"symbol":"ethbtc","bid":0.0701,"ask":0.0702}
		]}`))
	}))
	defer srv.Close()

	book, err := NewClient(srv.URL, 0).FetchBook(context.Background())
	if err != nil {
		t.Fatalf("FetchBook: %v", err)
	}
	if len(book) != 2 {
		t.Fatalf("got %d instruments, want 2", len(book))
	}
	if book[0].Symbol != "btcusdt" || book[0].Ask.String() != "30001.25" {
		t.Errorf("unexpected entry %+v", book[0])
	}
}

func TestFetchBookStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","err-msg":"invalid"}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, 0).FetchBook(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}
