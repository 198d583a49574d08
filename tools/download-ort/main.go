// Build-time tool that fetches the native libraries the ORT hugot backend
// links against: the ONNX Runtime shared library and the HuggingFace
// tokenizers static library.
//
// Required env: ORT_VERSION        (e.g. "1.23.2")
// Optional env: ORT_LIB_DIR        (default "./lib")
//               TOKENIZERS_VERSION (default "1.24.0")
//
// Usage: ORT_VERSION=1.23.2 go run ./tools/download-ort
package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

func main() {
	ortVersion := os.Getenv("ORT_VERSION")
	if ortVersion == "" {
		fmt.Fprintln(os.Stderr, "ORT_VERSION env var is required")
		os.Exit(1)
	}
	tokVersion := envOr("TOKENIZERS_VERSION", "1.24.0")
	destDir := envOr("ORT_LIB_DIR", "./lib")

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create directory: %v\n", err)
		os.Exit(1)
	}

	downloads, err := platformDownloads(ortVersion, tokVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	for _, d := range downloads {
		if err := d.install(destDir); err != nil {
			fmt.Fprintf(os.Stderr, "download failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// download pairs a release archive URL with the library file to extract
// from it.
type download struct {
	url  string
	file string
}

// platformDownloads resolves the archive URLs and library names for the
// current GOOS/GOARCH.
func platformDownloads(ortVersion, tokVersion string) ([]download, error) {
	var ortArch, ortLib, tokArch string
	key := runtime.GOOS + "/" + runtime.GOARCH
	switch key {
	case "linux/amd64":
		ortArch, ortLib, tokArch = "linux-x64", "libonnxruntime.so", "linux-amd64"
	case "linux/arm64":
		ortArch, ortLib, tokArch = "linux-aarch64", "libonnxruntime.so", "linux-arm64"
	case "darwin/arm64":
		ortArch, ortLib, tokArch = "osx-arm64", "libonnxruntime.dylib", "darwin-arm64"
	case "darwin/amd64":
		ortArch, ortLib, tokArch = "osx-x86_64", "libonnxruntime.dylib", "darwin-x86_64"
	default:
		return nil, fmt.Errorf("no prebuilt libraries for %s", key)
	}

	return []download{
		{
			url: fmt.Sprintf(
				"https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz",
				ortVersion, ortArch, ortVersion,
			),
			file: ortLib,
		},
		{
			url: fmt.Sprintf(
				"https://github.com/daulet/tokenizers/releases/download/v%s/libtokenizers.%s.tar.gz",
				tokVersion, tokArch,
			),
			file: "libtokenizers.a",
		},
	}, nil
}

// install fetches the archive and extracts the library into destDir,
// retrying transient failures with exponential backoff. Files already
// present are left untouched.
func (d download) install(destDir string) error {
	destPath := filepath.Join(destDir, d.file)
	if _, err := os.Stat(destPath); err == nil {
		fmt.Printf("%s already exists, skipping\n", destPath)
		return nil
	}

	fmt.Printf("Downloading %s\n", d.url)

	var err error
	delay := 2 * time.Second
	for i := 0; i < 4; i++ {
		if i > 0 {
			fmt.Fprintf(os.Stderr, "retry in %s: %v\n", delay, err)
			time.Sleep(delay)
			delay *= 2
		}
		if err = d.fetchAndExtract(destDir); err == nil {
			fmt.Printf("Installed %s\n", destPath)
			return nil
		}
	}
	return err
}

func (d download) fetchAndExtract(destDir string) error {
	resp, err := http.Get(d.url) //nolint:gosec
	if err != nil {
		return fmt.Errorf("fetch %s: %w", d.url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, d.url)
	}

	return extractTgz(resp.Body, destDir, d.file)
}

// extractTgz scans a gzipped tarball for filename and writes it to destDir.
// Versioned variants like libonnxruntime.1.23.2.dylib match too; the output
// always uses the plain name.
func extractTgz(body io.Reader, destDir, filename string) error {
	gz, err := gzip.NewReader(body)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close() //nolint:errcheck

	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read: %w", err)
		}

		// Symlinks and directories are not the real file.
		if header.Typeflag != tar.TypeReg {
			continue
		}

		base := filepath.Base(header.Name)
		if base != filename && !strings.HasPrefix(base, stem+".") {
			continue
		}

		return writeFile(filepath.Join(destDir, filename), tr)
	}

	return fmt.Errorf("%s not found in archive", filename)
}

func writeFile(path string, src io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}

	return out.Close()
}
