package steps

import (
	"context"
	"testing"

	"github.com/veridoc/veridoc-backend/internal/domain"
)

func TestClassifyRouteRules(t *testing.T) {
	deps := testDeps(&fakeStore{})

	cases := []struct {
		query string
		want  domain.Route
	}{
		{"What is the invoice total amount?", domain.RouteVector},
		{"What is the SWIFT code?", domain.RouteVector},
		{"What is the Agent fee for short-term rentals (<180 days)?", domain.RouteVector},
		{"Summarize the termination clauses across all contracts", domain.RouteGlobal},
		{"Summarize each document in the collection", domain.RouteGlobal},
		{"Trace the relationship between the invoice and the service contract", domain.RouteDrift},
		{"How are Meridian Holdings and Apex Logistics connected?", domain.RouteDrift},
		{"Who is Acme Corp?", domain.RouteLocal},
		{"When does the contract expire?", domain.RouteLocal},
		{"Where is the registered office?", domain.RouteLocal},
	}
	for _, tc := range cases {
		got, _ := ClassifyRoute(context.Background(), deps, tc.query)
		if got != tc.want {
			t.Fatalf("ClassifyRoute(%q) = %s, want %s", tc.query, got, tc.want)
		}
	}
}

func TestClassifyRouteLLMFallback(t *testing.T) {
	deps := testDeps(&fakeStore{})
	deps.LLM = &fakeLLM{
		jsonFn: func(_, _, _ string) (map[string]any, error) {
			return map[string]any{"route": "global"}, nil
		},
	}
	route, reason := ClassifyRoute(context.Background(), deps, "tell me about recent developments described here")
	if route != domain.RouteGlobal || reason != "llm" {
		t.Fatalf("expected the LLM's choice, got %s (%s)", route, reason)
	}
}

func TestClassifyRouteDefaultsToLocalOnLLMFailure(t *testing.T) {
	deps := testDeps(&fakeStore{})
	// fakeLLM with no jsonFn errors on every call.
	route, _ := ClassifyRoute(context.Background(), deps, "tell me about the vendor's obligations here")
	if route != domain.RouteLocal {
		t.Fatalf("expected the local default, got %s", route)
	}
}

func TestClassifyRouteIsDeterministic(t *testing.T) {
	deps := testDeps(&fakeStore{})
	const q = "Summarize the indemnification clauses across all agreements"
	first, _ := ClassifyRoute(context.Background(), deps, q)
	for i := 0; i < 5; i++ {
		got, _ := ClassifyRoute(context.Background(), deps, q)
		if got != first {
			t.Fatalf("classification flapped: %s then %s", first, got)
		}
	}
}
