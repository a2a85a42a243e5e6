// Package convert turns uploaded Word documents into PDF with a headless
// LibreOffice.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/models"
)

// allowed lists the accepted upload extensions.
var allowed = map[string]bool{".doc": true, ".docx": true}

// Allowed reports whether filename has a .doc or .docx extension.
func Allowed(filename string) bool {
	return allowed[strings.ToLower(filepath.Ext(filename))]
}

// runFunc executes the converter binary and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Converter runs LibreOffice. Each call works in its own scratch
// directory, so calls may run concurrently.
type Converter struct {
	binary    string
	outputDir string
	timeout   time.Duration
	run       runFunc
}

// New returns a converter configured from cfg. An empty output directory
// keeps PDFs under the system temp dir.
func New(cfg config.ConvertConfig) *Converter {
	c := &Converter{
		binary:    cfg.Binary,
		outputDir: cfg.OutputDir,
		timeout:   cfg.Timeout,
		run:       execRun,
	}
	if c.binary == "" {
		c.binary = "soffice"
	}
	if c.outputDir == "" {
		c.outputDir = filepath.Join(os.TempDir(), "strata-pdf")
	}
	if c.timeout <= 0 {
		c.timeout = 2 * time.Minute
	}
	return c
}

// Available reports whether the converter binary answers --version.
func (c *Converter) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.run(ctx, c.binary, "--version"); err != nil {
		slog.Debug("convert: binary not available", "binary", c.binary, "error", err)
		return false
	}
	return true
}

// Convert writes the upload to a scratch directory, converts it and
// returns the path of the PDF inside the output directory. The caller owns
// the returned file.
func (c *Converter) Convert(ctx context.Context, filename string, src io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." || !Allowed(name) {
		return "", models.NewScrapeError(models.ErrCodeUnsupported, "only .doc and .docx files are accepted", nil)
	}

	work, err := os.MkdirTemp("", "word_upload_")
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeConversion, "create scratch dir", err)
	}
	defer os.RemoveAll(work)

	input := filepath.Join(work, name)
	size, err := writeFile(input, src)
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeConversion, "store upload", err)
	}
	slog.Info("convert: file received", "name", name, "bytes", size)

	outDir := filepath.Join(work, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", models.NewScrapeError(models.ErrCodeConversion, "create output dir", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	out, err := c.run(runCtx, c.binary, "--headless", "--norestore", "--convert-to", "pdf", "--outdir", outDir, input)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", models.NewScrapeError(models.ErrCodeTimeout, fmt.Sprintf("conversion exceeded %s", c.timeout), err)
		}
		return "", models.NewScrapeError(models.ErrCodeConversion,
			fmt.Sprintf("conversion failed: %s", strings.TrimSpace(string(out))), err)
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	produced := filepath.Join(outDir, stem+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return "", models.NewScrapeError(models.ErrCodeConversion, "no PDF was produced", err)
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", models.NewScrapeError(models.ErrCodeConversion, "create output dir", err)
	}
	final := filepath.Join(c.outputDir, fmt.Sprintf("%s_%d.pdf", stem, time.Now().UnixNano()))
	if err := moveFile(produced, final); err != nil {
		return "", models.NewScrapeError(models.ErrCodeConversion, "move PDF", err)
	}
	slog.Info("convert: pdf ready", "path", final, "elapsed", time.Since(start).Round(time.Millisecond))
	return final, nil
}

// PDFName is the download name for an uploaded document.
func PDFName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".pdf"
}

func writeFile(path string, src io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// moveFile renames, falling back to a copy across filesystems.
func moveFile(from, to string) error {
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := writeFile(to, src); err != nil {
		os.Remove(to)
		return err
	}
	return nil
}
