package show

// BBox is an integer bounding box with a detector confidence in [0,1].
type BBox struct {
	X, Y, W, H int
	Confidence float64
}

// Area returns W*H.
func (b BBox) Area() int { return b.W * b.H }

// CenterX returns the horizontal center.
func (b BBox) CenterX() float64 { return float64(b.X) + float64(b.W)/2 }

// CenterY returns the vertical center.
func (b BBox) CenterY() float64 { return float64(b.Y) + float64(b.H)/2 }

// Clamp constrains b to the [0,canvasW)x[0,canvasH) canvas.
func Clamp(b BBox, canvasW, canvasH int) BBox {
	out := b
	if out.X < 0 {
		out.W += out.X
		out.X = 0
	}
	if out.Y < 0 {
		out.H += out.Y
		out.Y = 0
	}
	if out.X+out.W > canvasW {
		out.W = canvasW - out.X
	}
	if out.Y+out.H > canvasH {
		out.H = canvasH - out.Y
	}
	if out.W < 0 {
		out.W = 0
	}
	if out.H < 0 {
		out.H = 0
	}
	return out
}
