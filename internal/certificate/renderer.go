package certificate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"strings"

	"github.com/go-pdf/fpdf"

	"quizdesk/internal/domain"
)

const imageName = "certificate"

// Store writes a file atomically: write's output is only kept when it
// returns nil.
type Store interface {
	WriteWith(name string, write func(w io.Writer) error) (string, error)
}

// CaptureFunc rasterizes a certificate.
type CaptureFunc func(cert domain.Certificate, scale int) (image.Image, error)

// Options configures the exported page. Zero values mean A4 landscape at
// DefaultScale.
type Options struct {
	PageSize    string
	Orientation string
	Scale       int
}

// Renderer exports passing certificates as PDF files.
type Renderer struct {
	store   Store
	opts    Options
	capture CaptureFunc
}

func NewRenderer(store Store, opts Options) *Renderer {
	if opts.PageSize == "" {
		opts.PageSize = "A4"
	}
	opts.Orientation = orientation(opts.Orientation)
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	return &Renderer{
		store: store,
		opts:  opts,
		capture: func(cert domain.Certificate, scale int) (image.Image, error) {
			img, err := Capture(cert, scale)
			if err != nil {
				return nil, err
			}
			return img, nil
		},
	}
}

// WithCapture returns a copy using fn for the rasterization step.
func (r *Renderer) WithCapture(fn CaptureFunc) *Renderer {
	clone := *r
	clone.capture = fn
	return &clone
}

// Render captures the layout and writes the PDF. Nothing is written when
// the verdict did not pass or the capture fails.
func (r *Renderer) Render(ctx context.Context, cert domain.Certificate, verdict domain.Verdict) (string, error) {
	if !verdict.Passed {
		return "", fmt.Errorf("%w: %d%% is below the pass mark", domain.ErrNotEligible, verdict.Percentage)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := r.capture(cert, r.opts.Scale)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCaptureFailed, err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return "", fmt.Errorf("%w: empty image", domain.ErrCaptureFailed)
	}
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return "", fmt.Errorf("%w: encode png: %w", domain.ErrCaptureFailed, err)
	}

	name := Filename(cert.Subject)
	path, err := r.store.WriteWith(name, func(w io.Writer) error {
		return r.writePDF(w, cert, encoded.Bytes(), bounds.Dx(), bounds.Dy())
	})
	if err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	log.Printf("certificate: exported %s", path)
	return path, nil
}

func (r *Renderer) writePDF(w io.Writer, cert domain.Certificate, pngData []byte, imgW, imgH int) error {
	pdf := fpdf.New(r.opts.Orientation, "mm", r.opts.PageSize, "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(cert.Subject+" Quiz Certificate", true)
	pdf.SetAuthor(cert.RecipientName, true)
	if !cert.IssueDate.IsZero() {
		pdf.SetCreationDate(cert.IssueDate)
	}
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	place := Fit(pageW, pageH, float64(imgW), float64(imgH))

	opt := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(pngData))
	pdf.ImageOptions(imageName, place.X, place.Y, place.Width, place.Height, false, opt, 0, "")
	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func orientation(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "p", "portrait":
		return "P"
	default:
		return "L"
	}
}
