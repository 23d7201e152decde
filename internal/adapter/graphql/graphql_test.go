package graphql

import (
	"errors"
	"strings"
	"testing"
)

func TestDepth_CountsNestedBraces(t *testing.T) {
	query := `query { viewer { repositories { nodes { issues { nodes { title } } } } } }`
	if got := Depth(query); got != 6 {
		t.Errorf("Depth() = %d, want 6", got)
	}
}

func TestDepth_IgnoresBracesInCommentsAndStrings(t *testing.T) {
	query := "query {\n  # this comment has a { brace }\n  field(arg: \"a { fake } brace\")\n}"
	if got := Depth(query); got != 1 {
		t.Errorf("Depth() = %d, want 1, got braces leaked from comment/string", got)
	}
}

func TestDepth_EmptyQuery(t *testing.T) {
	if got := Depth(""); got != 0 {
		t.Errorf("Depth(\"\") = %d, want 0", got)
	}
}

func TestComplexity_ExcludesKeywords(t *testing.T) {
	query := `query { a b c }`
	if got := Complexity(query); got != 3 {
		t.Errorf("Complexity() = %d, want 3", got)
	}
}

func TestComplexity_LargerQueryHasHigherScore(t *testing.T) {
	small := `query { a }`
	large := `query { a b c d e f g h i j }`
	if Complexity(large) <= Complexity(small) {
		t.Errorf("expected larger query to score higher complexity")
	}
}

func TestIsSubscription(t *testing.T) {
	cases := map[string]bool{
		"subscription { onMessage { id } }": true,
		"  subscription OnMsg { onMessage { id } }": true,
		"query { viewer { id } }":            false,
		"mutation { createUser { id } }":     false,
	}
	for q, want := range cases {
		if got := IsSubscription(q); got != want {
			t.Errorf("IsSubscription(%q) = %v, want %v", q, got, want)
		}
	}
}

func TestGuard_RejectsSubscriptions(t *testing.T) {
	err := Guard("subscription { onMessage { id } }", 10, 100)
	if err != ErrSubscriptionUnsupported {
		t.Fatalf("Guard() error = %v, want ErrSubscriptionUnsupported", err)
	}
}

func TestGuard_RejectsOverDepth(t *testing.T) {
	query := `query { a { b { c { d { e } } } } }`
	err := Guard(query, 2, 0)
	if err == nil {
		t.Fatal("expected depth error")
	}
	var depthErr *ErrDepthExceeded
	if !errors.As(err, &depthErr) {
		t.Fatalf("error type = %T, want *ErrDepthExceeded", err)
	}
}

func TestGuard_RejectsOverComplexity(t *testing.T) {
	query := `query { a b c d e f g h }`
	err := Guard(query, 0, 3)
	if err == nil {
		t.Fatal("expected complexity error")
	}
	var complexityErr *ErrComplexityExceeded
	if !errors.As(err, &complexityErr) {
		t.Fatalf("error type = %T, want *ErrComplexityExceeded", err)
	}
}

func TestGuard_PassesWithinLimits(t *testing.T) {
	if err := Guard(`query { a { b } }`, 5, 10); err != nil {
		t.Fatalf("Guard() = %v, want nil", err)
	}
}

func TestGuard_ZeroLimitsDisableChecks(t *testing.T) {
	query := `query { a { b { c { d { e { f } } } } } }`
	if err := Guard(query, 0, 0); err != nil {
		t.Fatalf("Guard() with zero limits = %v, want nil", err)
	}
}

func TestWrapUpstreamError_ContainsStatusAndMessage(t *testing.T) {
	body, err := WrapUpstreamError(502, "upstream unavailable")
	if err != nil {
		t.Fatalf("WrapUpstreamError: %v", err)
	}
	if !strings.Contains(string(body), `"status":502`) {
		t.Errorf("body missing status field: %s", body)
	}
	if !strings.Contains(string(body), "upstream unavailable") {
		t.Errorf("body missing message: %s", body)
	}
}
