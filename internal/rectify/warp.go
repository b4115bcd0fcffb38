package rectify

import (
	"fmt"
	"image"
	"image/color"

	"rr-labeler/internal/calibration"
	photo "rr-labeler/internal/image"

	"gocv.io/x/gocv"
)

// Warp renders src through plan.
func Warp(src image.Image, plan Plan) (*image.RGBA, error) {
	mat, err := imageToMat(src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, plan.Matrix[r][c])
		}
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.WarpPerspectiveWithParams(mat, &dst, m, image.Point{X: plan.Width, Y: plan.Height},
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})

	return matToImage(dst)
}

// Rectify resolves a plan for src and warps it.
func Rectify(src image.Image, p *calibration.Perspective, pxPerMM float64, mode Mode) (*image.RGBA, Plan, error) {
	b := src.Bounds()
	plan, err := NewPlan(p, b.Dx(), b.Dy(), pxPerMM, mode)
	if err != nil {
		return nil, Plan{}, err
	}
	out, err := Warp(src, plan)
	if err != nil {
		return nil, Plan{}, err
	}
	return out, plan, nil
}

// imageToMat converts a Go image to a BGR Mat.
func imageToMat(img image.Image) (gocv.Mat, error) {
	rgba := photo.ToRGBA(img)
	b := rgba.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// matToImage converts a BGR Mat to an RGBA image.
func matToImage(mat gocv.Mat) (*image.RGBA, error) {
	rgbaMat := gocv.NewMat()
	defer rgbaMat.Close()
	gocv.CvtColor(mat, &rgbaMat, gocv.ColorBGRToRGBA)

	data, err := rgbaMat.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read warped image: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, rgbaMat.Cols(), rgbaMat.Rows()))
	copy(img.Pix, data)
	return img, nil
}
