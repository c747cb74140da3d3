package snapshot

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSyncCopiesNewFileWithoutMovingTheSource(t *testing.T) {
	dir := t.TempDir()
	netPath := filepath.Join(dir, "net.db")
	localPath := filepath.Join(dir, "local.db")
	if err := os.WriteFile(netPath, []byte("network contents"), 0o644); err != nil {
		t.Fatalf("write network file: %v", err)
	}

	result, err := Sync(context.Background(), Source{NetPath: netPath, LocalPath: localPath})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Updated {
		t.Errorf("result = %+v, want Updated=true", result)
	}

	if _, err := os.Stat(netPath); err != nil {
		t.Fatalf("Sync must not remove the network source file: %v", err)
	}
	got, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("read local copy: %v", err)
	}
	if string(got) != "network contents" {
		t.Errorf("local copy = %q, want %q", got, "network contents")
	}
}

func TestSyncSkipsWhenUpToDate(t *testing.T) {
	dir := t.TempDir()
	netPath := filepath.Join(dir, "net.db")
	localPath := filepath.Join(dir, "local.db")
	os.WriteFile(netPath, []byte("same size!"), 0o644)
	os.WriteFile(localPath, []byte("same size!"), 0o644)

	now := time.Now()
	os.Chtimes(netPath, now, now)
	os.Chtimes(localPath, now, now)

	result, err := Sync(context.Background(), Source{NetPath: netPath, LocalPath: localPath})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Updated {
		t.Errorf("result = %+v, want Updated=false (same size, same mtime)", result)
	}
}

func TestSyncRefreshesWhenSizeDiffers(t *testing.T) {
	dir := t.TempDir()
	netPath := filepath.Join(dir, "net.db")
	localPath := filepath.Join(dir, "local.db")
	os.WriteFile(netPath, []byte("a longer network body"), 0o644)
	os.WriteFile(localPath, []byte("short"), 0o644)

	result, err := Sync(context.Background(), Source{NetPath: netPath, LocalPath: localPath})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Updated {
		t.Error("a size mismatch should trigger a refresh")
	}
}

func TestSyncFromZipExtractsNamedMember(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "dw.zip")
	localPath := filepath.Join(dir, "local.accdb")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	w1, _ := zw.Create("small.txt")
	w1.Write([]byte("x"))
	w2, _ := zw.Create(dwDataFileName)
	w2.Write([]byte("the real dwings data"))
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	f.Close()

	result, err := Sync(context.Background(), Source{NetPath: zipPath, LocalPath: localPath})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Updated {
		t.Errorf("result = %+v, want Updated=true", result)
	}
	got, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "the real dwings data" {
		t.Errorf("extracted content = %q, want the named member's content", got)
	}
}

func writeZip(t *testing.T, path, memberName, contents string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create(memberName)
	if err != nil {
		t.Fatalf("create zip member: %v", err)
	}
	if _, err := w.Write([]byte(contents)); err != nil {
		t.Fatalf("write zip member: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	f.Close()
}

func TestSyncFromZipSkipsReExtractWhenZipCacheUnchanged(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "dw.zip")
	localPath := filepath.Join(dir, "local.accdb")
	zipCache := filepath.Join(dir, "dw.zip.cache")

	writeZip(t, zipPath, dwDataFileName, "version one")

	first, err := Sync(context.Background(), Source{NetPath: zipPath, LocalPath: localPath, LocalZipCache: zipCache})
	if err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if !first.Updated {
		t.Fatalf("first Sync result = %+v, want Updated=true", first)
	}
	if _, err := os.Stat(zipCache); err != nil {
		t.Fatalf("first Sync should populate the zip cache: %v", err)
	}

	firstExtractedModTime, err := os.Stat(localPath)
	if err != nil {
		t.Fatalf("stat extracted local file: %v", err)
	}

	second, err := Sync(context.Background(), Source{NetPath: zipPath, LocalPath: localPath, LocalZipCache: zipCache})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if second.Updated {
		t.Errorf("second Sync result = %+v, want Updated=false (zip unchanged against its cache)", second)
	}

	secondModTime, err := os.Stat(localPath)
	if err != nil {
		t.Fatalf("stat extracted local file: %v", err)
	}
	if !secondModTime.ModTime().Equal(firstExtractedModTime.ModTime()) {
		t.Error("the extracted local file should not have been re-written on the unchanged-zip sync")
	}
}

func TestSyncFromZipReExtractsWhenZipContentChanges(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "dw.zip")
	localPath := filepath.Join(dir, "local.accdb")
	zipCache := filepath.Join(dir, "dw.zip.cache")

	writeZip(t, zipPath, dwDataFileName, "version one")
	if _, err := Sync(context.Background(), Source{NetPath: zipPath, LocalPath: localPath, LocalZipCache: zipCache}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	writeZip(t, zipPath, dwDataFileName, "version two, much longer than the first")

	result, err := Sync(context.Background(), Source{NetPath: zipPath, LocalPath: localPath, LocalZipCache: zipCache})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if !result.Updated {
		t.Errorf("result = %+v, want Updated=true (zip content changed)", result)
	}
	got, err := os.ReadFile(localPath)
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "version two, much longer than the first" {
		t.Errorf("extracted content = %q, want the refreshed member's content", got)
	}
}

func TestSyncMissingNetworkArtifactErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Sync(context.Background(), Source{NetPath: filepath.Join(dir, "missing.db"), LocalPath: filepath.Join(dir, "local.db")})
	if err == nil {
		t.Error("Sync should error when the network artifact does not exist")
	}
}
