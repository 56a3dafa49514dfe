package kucoin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func TestFetchBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"200000","data":{"time":1700000000000,"ticker":[
			{"symbol":"BTC-USDT","buy":"30000.1","sell":"30000.2"},
			{"symbol":"HALT-USDT","buy":null,"sell":null}
		]}}`))
	}))
	defer srv.Close()

	book, err := NewClient(srv.URL, 0).FetchBook(context.Background())
	if err != nil {
		t.Fatalf("FetchBook: %v", err)
	}
	if len(book) != 2 || book[0].Symbol != "BTC-USDT" || book[0].Bid.String() != "30000.1" {
		t.Fatalf("unexpected book %+v", book)
	}
	if !book[1].Bid.IsZero() {
		t.Errorf("null bid decoded as %s", book[1].Bid)
	}
}

func TestFetchBookErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"400100","msg":"bad"}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, 0).FetchBook(context.Background()); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}
