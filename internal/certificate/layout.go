// Package certificate draws the achievement certificate and exports it as a
// single-page PDF.
package certificate

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"quizdesk/internal/domain"
)

// Layout size at scale 1; Capture multiplies both by the scale.
const (
	BaseWidth    = 900
	BaseHeight   = 636
	DefaultScale = 2

	minFontSize = 10
	textMargin  = 60
)

var (
	paper  = color.RGBA{R: 0xff, G: 0xfd, B: 0xf7, A: 0xff}
	gold   = color.RGBA{R: 0xc9, G: 0xa2, B: 0x27, A: 0xff}
	navy   = color.RGBA{R: 0x1f, G: 0x2a, B: 0x44, A: 0xff}
	slate  = color.RGBA{R: 0x55, G: 0x5f, B: 0x6d, A: 0xff}
	accent = color.RGBA{R: 0x19, G: 0x87, B: 0x54, A: 0xff}
)

var (
	fontsOnce   sync.Once
	boldFont    *opentype.Font
	regularFont *opentype.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if boldFont, fontsErr = opentype.Parse(gobold.TTF); fontsErr != nil {
			return
		}
		regularFont, fontsErr = opentype.Parse(goregular.TTF)
	})
	return fontsErr
}

type align int

const (
	alignCenter align = iota
	alignLeft
)

type canvas struct {
	img   *image.RGBA
	scale float64
}

// Capture rasterizes the certificate at scale times the base size.
func Capture(cert domain.Certificate, scale int) (*image.RGBA, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("invalid scale %d", scale)
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}

	c := &canvas{
		img:   image.NewRGBA(image.Rect(0, 0, BaseWidth*scale, BaseHeight*scale)),
		scale: float64(scale),
	}
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(paper), image.Point{}, draw.Src)
	c.frame(18, 8, gold)
	c.frame(34, 2, navy)

	const mid = BaseWidth / 2
	lines := []struct {
		f    *opentype.Font
		size float64
		col  color.Color
		text string
		y    float64
	}{
		{boldFont, 40, navy, "Certificate of Achievement", 130},
		{regularFont, 20, slate, "This is to certify that", 195},
		{boldFont, 36, navy, cert.RecipientName, 250},
		{regularFont, 20, slate, "has successfully completed the", 300},
		{boldFont, 28, navy, cert.Subject + " Quiz", 350},
		{regularFont, 20, slate, "with a score of", 398},
		{boldFont, 44, accent, strconv.Itoa(cert.Percentage) + "%", 458},
		{regularFont, 20, accent, "Passed with Distinction", 505},
	}
	for _, l := range lines {
		if err := c.text(l.f, l.size, l.col, l.text, mid, l.y, alignCenter); err != nil {
			return nil, err
		}
	}

	date := "Date: " + cert.IssueDate.Format("January 2, 2006")
	if err := c.text(regularFont, 18, slate, date, 80, 575, alignLeft); err != nil {
		return nil, err
	}

	c.disc(790, 555, 44, gold)
	c.disc(790, 555, 38, paper)
	c.disc(790, 555, 34, gold)
	if err := c.text(boldFont, 16, paper, "SEAL", 790, 561, alignCenter); err != nil {
		return nil, err
	}
	return c.img, nil
}

// frame draws a rectangular border inset from the edges, in base units.
func (c *canvas) frame(inset, thickness float64, col color.Color) {
	b := c.img.Bounds()
	in := int(inset * c.scale)
	th := int(thickness * c.scale)
	if th < 1 {
		th = 1
	}
	src := image.NewUniform(col)
	rects := []image.Rectangle{
		image.Rect(in, in, b.Dx()-in, in+th),
		image.Rect(in, b.Dy()-in-th, b.Dx()-in, b.Dy()-in),
		image.Rect(in, in, in+th, b.Dy()-in),
		image.Rect(b.Dx()-in-th, in, b.Dx()-in, b.Dy()-in),
	}
	for _, r := range rects {
		draw.Draw(c.img, r, src, image.Point{}, draw.Src)
	}
}

func (c *canvas) disc(cx, cy, r float64, col color.RGBA) {
	scx, scy, sr := cx*c.scale, cy*c.scale, r*c.scale
	for y := int(scy - sr); y <= int(scy+sr); y++ {
		for x := int(scx - sr); x <= int(scx+sr); x++ {
			dx := float64(x) + 0.5 - scx
			dy := float64(y) + 0.5 - scy
			if dx*dx+dy*dy <= sr*sr {
				c.img.SetRGBA(x, y, col)
			}
		}
	}
}

// text draws s with its baseline at y. Centered text that would overflow the
// margins is drawn smaller.
func (c *canvas) text(f *opentype.Font, size float64, col color.Color, s string, x, y float64, a align) error {
	if f == nil {
		return errors.New("font not loaded")
	}
	maxWidth := fixed.I(int((BaseWidth - 2*textMargin) * c.scale))
	for {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    size * c.scale,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return fmt.Errorf("font face: %w", err)
		}
		d := &font.Drawer{Dst: c.img, Src: image.NewUniform(col), Face: face}
		width := d.MeasureString(s)
		if a == alignCenter && width > maxWidth && size > minFontSize {
			_ = face.Close()
			size -= 2
			continue
		}

		dotX := fixed.I(int(x * c.scale))
		if a == alignCenter {
			dotX -= width / 2
		}
		d.Dot = fixed.Point26_6{X: dotX, Y: fixed.I(int(y * c.scale))}
		d.DrawString(s)
		return face.Close()
	}
}
