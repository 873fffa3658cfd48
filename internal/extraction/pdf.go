package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/JaimeStill/document-context/pkg/config"
	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/encoding"
	"github.com/JaimeStill/document-context/pkg/image"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/taxdraft/internal/prompts"
)

// Renderer converts PDF bytes into one PNG data URI per page.
type Renderer interface {
	Render(ctx context.Context, data []byte) ([]string, error)
}

// RendererFunc adapts a function into a Renderer.
type RendererFunc func(ctx context.Context, data []byte) ([]string, error)

func (f RendererFunc) Render(ctx context.Context, data []byte) ([]string, error) {
	return f(ctx, data)
}

// ImageMagick renders pages with document-context. It requires the
// ImageMagick binaries on PATH.
type ImageMagick struct{}

func (ImageMagick) Render(ctx context.Context, data []byte) ([]string, error) {
	tempDir, err := os.MkdirTemp("", "taxdraft-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	pdfPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(pdfPath, data, 0600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	pdfDoc, err := document.OpenPDF(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer pdfDoc.Close()

	renderer, err := image.NewImageMagickRenderer(config.DefaultImageConfig())
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	pages, err := pdfDoc.ExtractAllPages()
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}

	uris := make([]string, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(min(runtime.NumCPU(), len(pages)), 1))

	for i, page := range pages {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			img, err := page.ToImage(renderer, nil)
			if err != nil {
				return fmt.Errorf("render page %d: %w", i+1, err)
			}

			uri, err := encoding.EncodeImageDataURI(img, document.PNG)
			if err != nil {
				return fmt.Errorf("encode page %d: %w", i+1, err)
			}

			uris[i] = uri
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return uris, nil
}

// transcribe validates the PDF, renders its pages and reads each page
// through the vision model. Page texts are joined in page order.
func (e *extractor) transcribe(ctx context.Context, name string, data []byte) (string, int, error) {
	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}

	uris, err := e.renderer.Render(ctx, data)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	if len(uris) != count {
		e.logger.WarnContext(ctx, "rendered page count differs",
			"name", name,
			"expected", count,
			"rendered", len(uris),
		)
	}

	prompt, err := e.transcribePrompt(ctx)
	if err != nil {
		return "", 0, err
	}

	texts := make([]string, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(min(e.workers, len(uris)), 1))

	for i, uri := range uris {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			text, err := e.vision.Vision(gctx, prompt, []string{uri})
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}

			texts[i] = strings.TrimSpace(text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrTranscribeFailed, err)
	}

	return strings.Join(texts, "\n\n"), len(uris), nil
}

func (e *extractor) transcribePrompt(ctx context.Context) (string, error) {
	instructions, err := e.prompts.Instructions(ctx, prompts.StageTranscribe)
	if err != nil {
		return "", fmt.Errorf("load transcribe instructions: %w", err)
	}
	spec, err := e.prompts.Spec(ctx, prompts.StageTranscribe)
	if err != nil {
		return "", fmt.Errorf("load transcribe spec: %w", err)
	}
	return instructions + "\n\n" + spec, nil
}
