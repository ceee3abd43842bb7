package extractor

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blakesmith/ar"

	"github.com/appstream-tools/dep11-generator/archive"
)

// pngStub is enough of a PNG for the extractor, which checks the file
// extension rather than decoding the image.
var pngStub = []byte("\x89PNG\r\n\x1a\nstub")

type debFile struct {
	name string
	data []byte
}

// createMockDeb writes a minimal .deb containing the given payload files
// to a temporary directory and returns its path.
func createMockDeb(t *testing.T, files []debFile) string {
	t.Helper()

	var dataBuf bytes.Buffer
	gw := gzip.NewWriter(&dataBuf)
	tw := tar.NewWriter(gw)
	for _, f := range files {
		hdr := &tar.Header{
			Name: "./" + f.name,
			Mode: 0o644,
			Size: int64(len(f.data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(f.data); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	arW := ar.NewWriter(&buf)
	if err := arW.WriteGlobalHeader(); err != nil {
		t.Fatalf("ar global header: %v", err)
	}
	addArMember(t, arW, "debian-binary", []byte("2.0\n"))
	addArMember(t, arW, "control.tar.gz", emptyTarGz(t))
	addArMember(t, arW, "data.tar.gz", dataBuf.Bytes())

	path := filepath.Join(t.TempDir(), "mock.deb")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func addArMember(t *testing.T, w *ar.Writer, name string, body []byte) {
	t.Helper()
	hdr := &ar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}
	if err := w.WriteHeader(hdr); err != nil {
		t.Fatalf("ar header %s: %v", name, err)
	}
	if _, err := w.Write(body); err != nil {
		t.Fatalf("ar body %s: %v", name, err)
	}
}

func emptyTarGz(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	tw.Close()
	gw.Close()
	return buf.Bytes()
}

func testRecord() archive.PackageRecord {
	return archive.PackageRecord{
		Name:     "calc",
		Version:  "1.0",
		Arch:     "amd64",
		Filename: "pool/main/c/calc/calc_1.0_amd64.deb",
	}
}

const calcDesktop = `[Desktop Entry]
Type=Application
Name=Calculator
Comment=Perform calculations
Icon=calcicon
Categories=Utility;
`

func TestProcessExtractsComponentAndIcon(t *testing.T) {
	deb := createMockDeb(t, []debFile{
		{"usr/share/applications/calc.desktop", []byte(calcDesktop)},
		{"usr/share/icons/hicolor/64x64/apps/calcicon.png", pngStub},
	})

	exportDir := t.TempDir()
	e := New("stable", "main", exportDir, []int{64})

	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(cpts) != 1 {
		t.Fatalf("got %d components, want 1", len(cpts))
	}
	cpt := cpts[0]
	if cpt.Ignored() {
		t.Fatalf("component ignored: %+v", cpt)
	}
	if cpt.ID != "calc.desktop" {
		t.Errorf("ID = %q", cpt.ID)
	}
	if cpt.Icon != "calc_calcicon.png" {
		t.Errorf("Icon = %q", cpt.Icon)
	}

	exported := filepath.Join(exportDir, "calc_1.0_amd64", "icons", "64", "calc_calcicon.png")
	got, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("exported icon: %v", err)
	}
	if !bytes.Equal(got, pngStub) {
		t.Error("exported icon content differs from payload")
	}
}

func TestProcessNoDesktopEntries(t *testing.T) {
	deb := createMockDeb(t, []debFile{
		{"usr/bin/tool", []byte("#!/bin/sh\n")},
	})
	e := New("stable", "main", t.TempDir(), []int{64})
	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(cpts) != 0 {
		t.Fatalf("got %d components, want 0", len(cpts))
	}
}

func TestProcessMissingIcon(t *testing.T) {
	deb := createMockDeb(t, []debFile{
		{"usr/share/applications/calc.desktop", []byte(calcDesktop)},
	})
	e := New("stable", "main", t.TempDir(), []int{64})
	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(cpts) != 1 {
		t.Fatalf("got %d components, want 1", len(cpts))
	}
	if !cpts[0].Ignored() {
		t.Error("component without a usable icon must be ignored")
	}
	if !cpts[0].HasHints() {
		t.Error("missing icon must record an error hint")
	}
}

func TestProcessPixmapsFallback(t *testing.T) {
	deb := createMockDeb(t, []debFile{
		{"usr/share/applications/calc.desktop", []byte(calcDesktop)},
		{"usr/share/pixmaps/calcicon.png", pngStub},
	})
	exportDir := t.TempDir()
	e := New("stable", "main", exportDir, []int{64, 128})
	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if cpts[0].Ignored() {
		t.Fatalf("component ignored: %+v", cpts[0])
	}
	// pixmaps icons are exported at the smallest configured size only
	if _, err := os.Stat(filepath.Join(exportDir, "calc_1.0_amd64", "icons", "64", "calc_calcicon.png")); err != nil {
		t.Errorf("fallback icon not exported: %v", err)
	}
}

func TestProcessUnsupportedIconFormat(t *testing.T) {
	desktop := strings.Replace(calcDesktop, "Icon=calcicon", "Icon=calcicon.xpm", 1)
	deb := createMockDeb(t, []debFile{
		{"usr/share/applications/calc.desktop", []byte(desktop)},
	})
	e := New("stable", "main", t.TempDir(), []int{64})
	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !cpts[0].Ignored() || !cpts[0].HasHints() {
		t.Error("unsupported icon format must leave an ignored, hinted component")
	}
}

func TestProcessEmptyDesktopFile(t *testing.T) {
	deb := createMockDeb(t, []debFile{
		{"usr/share/applications/empty.desktop", nil},
	})
	e := New("stable", "main", t.TempDir(), []int{64})
	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(cpts) != 1 {
		t.Fatalf("got %d components, want 1", len(cpts))
	}
	if !cpts[0].Ignored() || !cpts[0].HasHints() {
		t.Error("empty desktop file must produce an error hint")
	}
}

func TestProcessHiddenEntryNoIconExport(t *testing.T) {
	desktop := calcDesktop + "NoDisplay=true\n"
	deb := createMockDeb(t, []debFile{
		{"usr/share/applications/calc.desktop", []byte(desktop)},
		{"usr/share/icons/hicolor/64x64/apps/calcicon.png", pngStub},
	})
	exportDir := t.TempDir()
	e := New("stable", "main", exportDir, []int{64})
	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !cpts[0].Ignored() {
		t.Fatal("hidden entry must be ignored")
	}
	if _, err := os.Stat(filepath.Join(exportDir, "calc_1.0_amd64")); !os.IsNotExist(err) {
		t.Error("hidden entry must not export assets")
	}
}

func TestProcessDesktopWithoutIconKey(t *testing.T) {
	desktop := strings.Replace(calcDesktop, "Icon=calcicon\n", "", 1)
	deb := createMockDeb(t, []debFile{
		{"usr/share/applications/calc.desktop", []byte(desktop)},
	})
	e := New("stable", "main", t.TempDir(), []int{64})
	cpts, err := e.Process(testRecord(), deb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(cpts) != 1 {
		t.Fatalf("got %d components, want 1", len(cpts))
	}
	if !cpts[0].Ignored() {
		t.Error("desktop app without any icon must be ignored")
	}
	if !cpts[0].HasHints() {
		t.Error("desktop app without any icon must carry an error hint")
	}
}

func TestProcessUnreadableDeb(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.deb")
	if err := os.WriteFile(path, []byte("not an ar archive"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := New("stable", "main", t.TempDir(), []int{64})
	if _, err := e.Process(testRecord(), path); err == nil {
		t.Fatal("expected an error for a corrupt package file")
	}
}
