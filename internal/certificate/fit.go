package certificate

import "math"

// Placement positions an image on a page, in page units.
type Placement struct {
	Ratio  float64
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Fit scales an image uniformly so it fits inside the page without
// distortion and centers it. Degenerate sizes yield a zero Placement.
func Fit(pageWidth, pageHeight, imageWidth, imageHeight float64) Placement {
	if pageWidth <= 0 || pageHeight <= 0 || imageWidth <= 0 || imageHeight <= 0 {
		return Placement{}
	}
	ratio := math.Min(pageWidth/imageWidth, pageHeight/imageHeight)
	width := imageWidth * ratio
	height := imageHeight * ratio
	return Placement{
		Ratio:  ratio,
		X:      (pageWidth - width) / 2,
		Y:      (pageHeight - height) / 2,
		Width:  width,
		Height: height,
	}
}
