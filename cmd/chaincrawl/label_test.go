package main

import (
	"strings"
	"testing"
)

// TestLabelCmd tests label resolution for explicit addresses.
func TestLabelCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints one line per address in order", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		stdout, stderr, err := execute(t, "label", "-c", api.writeConfig(t), "--no-cache",
			cAddr.String(), aAddr.String(), bAddr.String())
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}

		want := []string{
			cAddr.String() + "\tDisperse",
			aAddr.String() + "\tUNLABELLED",
			bAddr.String() + "\texchange",
		}
		got := strings.Split(strings.TrimSpace(stdout), "\n")
		if len(got) != len(want) {
			t.Fatalf("expected %d lines, got %d:\n%s", len(want), len(got), stdout)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	})

	t.Run("provider order is configurable", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		stdout, _, err := execute(t, "label", "-c", api.writeConfig(t), "--no-cache",
			"--providers", "etherscan", bAddr.String())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(stdout) != bAddr.String()+"\tUNLABELLED" {
			t.Errorf("expected unlabelled without metadock, got %q", stdout)
		}
		if n := api.askedMetadock(bAddr); n != 0 {
			t.Errorf("expected metadock not to be asked, got %d requests", n)
		}
	})

	t.Run("warms the cache", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		cfgPath := api.writeConfig(t)
		cacheDir := t.TempDir()

		if _, _, err := execute(t, "label", "-c", cfgPath, "--cache-dir", cacheDir, bAddr.String()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, _, err := execute(t, "crawl", "-c", cfgPath, "--cache-dir", cacheDir, "-d", "1", rootAddr.String()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := api.askedMetadock(bAddr); n != 1 {
			t.Errorf("expected one metadock request for the warmed address, got %d", n)
		}
	})

	t.Run("rejects invalid address", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		_, _, err := execute(t, "label", "-c", api.writeConfig(t), "--no-cache",
			aAddr.String(), "not-an-address")
		if err == nil || !strings.Contains(err.Error(), "not-an-address") {
			t.Errorf("expected invalid address error, got %v", err)
		}
	})

	t.Run("requires an address", func(t *testing.T) {
		t.Parallel()

		if _, _, err := execute(t, "label"); err == nil {
			t.Error("expected error without arguments")
		}
	})
}
