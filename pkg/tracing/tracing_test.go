package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestParseAttributes(t *testing.T) {
	got := ParseAttributes(" service.namespace=tourpipe, bogus ,=x, team = media ")
	if len(got) != 2 {
		t.Fatalf("expected 2 attributes, got %v", got)
	}
	if got["service.namespace"] != "tourpipe" || got["team"] != "media" {
		t.Fatalf("unexpected attributes %v", got)
	}
	if len(ParseAttributes("")) != 0 {
		t.Fatal("expected empty map for empty input")
	}
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "tourpipe"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	_, span := Start(context.Background(), "test.span")
	End(span, errors.New("boom"))
}
