package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"songify/internal/config"
	"songify/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckNativeHost(t *testing.T) {
	testsupport.NewConfig(t, testsupport.WithStubbedBinaries("article_singer"))
	if result := CheckNativeHost("article_singer"); !result.Passed {
		t.Fatalf("expected stubbed host to resolve, got %s", result.Detail)
	}
	if result := CheckNativeHost("definitely-not-a-song-host"); result.Passed {
		t.Fatal("expected missing host to fail")
	}
}

func TestCheckCredentials(t *testing.T) {
	if r := CheckCredentials(config.Credentials{OpenAIAPIKey: "sk"}); r.Passed || r.Detail != "missing piapi_key" {
		t.Fatalf("unexpected result %+v", r)
	}
	if r := CheckCredentials(config.Credentials{OpenAIAPIKey: "sk", PiAPIKey: "pi"}); !r.Passed {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestCheckBindAvailable(t *testing.T) {
	held, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer held.Close()

	if r := CheckBindAvailable(context.Background(), held.Addr().String()); r.Passed {
		t.Fatal("expected occupied address to fail")
	}
	if r := CheckBindAvailable(context.Background(), "127.0.0.1:0"); !r.Passed {
		t.Fatalf("expected ephemeral port to bind: %s", r.Detail)
	}
}

func TestRunAllIncludesDownloadDirInLocalMode(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLocalPersistence())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg)
	var found bool
	for _, r := range results {
		if r.Name == "Download directory" {
			found = true
			if !r.Passed {
				t.Fatalf("download dir check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected download directory check in local mode")
	}
	if failed := Failed(results); len(failed) == 0 {
		t.Fatal("expected credential check to fail without keys")
	}
}
