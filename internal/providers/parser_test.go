package providers

import "testing"

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("mock|anthropic:primary|openai:backup")
	if len(refs) != 3 {
		t.Fatalf("expected 3 providers got %d", len(refs))
	}
	if refs[1].Name != "anthropic" || refs[1].KeyAlias != "primary" {
		t.Fatalf("unexpected parse result: %+v", refs[1])
	}
}

func TestParseProviderListEmptyFallsBackToMock(t *testing.T) {
	refs := ParseProviderList("  ")
	if len(refs) != 1 || refs[0].Name != "mock" {
		t.Fatalf("expected mock fallback, got %+v", refs)
	}
}
