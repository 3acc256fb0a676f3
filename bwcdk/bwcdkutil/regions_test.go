package bwcdkutil_test

import (
	"testing"

	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

func TestRegionIdentFor(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"us-east-1":      "Use1",
		"eu-west-1":      "Euw1",
		"eu-central-1":   "Euc1",
		"ap-northeast-1": "Apn1",
		"eusc-de-east-1": "Ede1",
	}
	for region, want := range tests {
		if got := bwcdkutil.RegionIdentFor(region); got != want {
			t.Errorf("RegionIdentFor(%q) = %q, want %q", region, got, want)
		}
	}
}

func TestRegionIdentForPanicsOnUnknown(t *testing.T) {
	t.Parallel()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for unknown region")
		}
	}()

	bwcdkutil.RegionIdentFor("unknown-region-1")
}
