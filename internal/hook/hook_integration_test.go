package hook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHook_SavePhoto_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	hookDir := findHookDir("save-photo")
	if hookDir == "" {
		t.Skip("save-photo hook not built")
	}

	mgr := NewManager(filepath.Dir(hookDir))
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	h, err := mgr.Get("save-photo")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	tmp := t.TempDir()
	src := filepath.Join(tmp, "photo.png")
	if err := os.WriteFile(src, []byte("png"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(tmp, "out")

	req := photoRequest()
	req.Path = src
	req.Config = json.RawMessage(`{"dir":"` + out + `"}`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("hook failed: %s", resp.Error)
	}
	if _, err := os.Stat(filepath.Join(out, req.PhotoID+".png")); err != nil {
		t.Errorf("photo not copied: %v", err)
	}
}

// findHookDir returns the hook source directory when its binary has been built.
func findHookDir(name string) string {
	candidates := []string{
		filepath.Join("../../hooks", name),
		filepath.Join("../../../hooks", name),
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir
		}
	}
	return ""
}
