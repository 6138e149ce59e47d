package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/leonletto/alfred/internal/paths"
)

// Model is one downloadable GGUF model.
type Model struct {
	Name     string `json:"name"`
	Size     string `json:"size"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Models is the setup catalogue. The first entry is the default and is
// stored at paths.DefaultModelPath.
var Models = []Model{
	{
		Name:     "Phi-3 Mini 4K (Q4)",
		Size:     "2.4 GB",
		URL:      "https://huggingface.co/microsoft/Phi-3-mini-4k-instruct-gguf/resolve/main/Phi-3-mini-4k-instruct-q4.gguf",
		Filename: "phi-3-mini-q4.gguf",
	},
	{
		Name:     "Phi-3 Mini 4K (Q8)",
		Size:     "4.1 GB",
		URL:      "https://huggingface.co/microsoft/Phi-3-mini-4k-instruct-gguf/resolve/main/Phi-3-mini-4k-instruct-q8.gguf",
		Filename: "phi-3-mini-q8.gguf",
	},
	{
		Name:     "Qwen2.5-Coder 1.5B (Q4)",
		Size:     "1.0 GB",
		URL:      "https://huggingface.co/Qwen/Qwen2.5-Coder-1.5B-Instruct-GGUF/resolve/main/qwen2.5-coder-1.5b-instruct-q4_k_m.gguf",
		Filename: "qwen2.5-coder-1.5b-q4.gguf",
	},
}

// FindModel selects a catalogue entry by 1-based index, filename, or
// filename without the .gguf extension. Empty selects the default.
func FindModel(sel string) (Model, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return Models[0], nil
	}
	if n, err := strconv.Atoi(sel); err == nil {
		if n < 1 || n > len(Models) {
			return Model{}, fmt.Errorf("model index %d out of range 1-%d", n, len(Models))
		}
		return Models[n-1], nil
	}
	for _, m := range Models {
		if sel == m.Filename || sel == strings.TrimSuffix(m.Filename, ".gguf") {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("unknown model %q", sel)
}

// SetupResult reports what Setup did.
type SetupResult struct {
	Model      Model  `json:"model"`
	Path       string `json:"path"`
	Downloaded bool   `json:"downloaded"`
	Bytes      int64  `json:"bytes"`
}

// Setup downloads m into the models directory under dir, unless the file
// is already there, and records it as the configured model.
func Setup(ctx context.Context, client *http.Client, dir string, m Model) (*SetupResult, error) {
	dest := filepath.Join(paths.ModelsDir(dir), m.Filename)
	res := &SetupResult{Model: m, Path: dest}

	if info, err := os.Stat(dest); err == nil {
		res.Bytes = info.Size()
	} else {
		n, err := DownloadModel(ctx, client, m.URL, dest)
		if err != nil {
			return nil, err
		}
		res.Downloaded = true
		res.Bytes = n
	}

	// The default model needs no explicit path.
	model := dest
	if dest == paths.DefaultModelPath(dir) {
		model = ""
	}
	if _, err := UpdateConfig(paths.ConfigFile(dir), ConfigUpdate{Model: &model}); err != nil {
		return res, err
	}
	return res, nil
}

// DownloadModel streams url to dest and returns the number of bytes
// written. The body goes to a temporary file in the same directory that is
// renamed into place only after a complete download.
func DownloadModel(ctx context.Context, client *http.Client, url, dest string) (int64, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, fmt.Errorf("create models directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("download failed: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && resp.ContentLength > 0 && n != resp.ContentLength {
		err = errors.New("download truncated")
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("download %s: %w", url, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
