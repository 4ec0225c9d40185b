package view

import (
	"image"

	"github.com/soocke/beam-profiler-go/ui/images"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// CapturePreview shows the annotated residual frame next to the rendered
// profile plot. It owns two LabelWidgets and provides methods to update or
// reset them.
type CapturePreview interface {
	UpdateFrame(img image.Image)
	UpdateProfiles(pngData []byte)
	Reset()
}

type capturePreview struct {
	frameLabel   *LabelWidget
	profileLabel *LabelWidget
	maxW, maxH   int
	prevFrame    *Img // last Tk photo for the frame
	prevProfiles *Img // last Tk photo for the plot
}

// Old photos are deleted before replacement so Tk does not accumulate
// off-screen image data at the preview refresh rate.

// NewCapturePreview creates the preview labels at row: the frame spans
// columns 0-1, the plot columns 2-3.
func NewCapturePreview(row, maxW, maxH int) CapturePreview {
	v := &capturePreview{maxW: maxW, maxH: maxH}
	v.prevFrame = placeholderPhoto(maxW, maxH)
	v.prevProfiles = placeholderPhoto(maxW, maxH)
	v.frameLabel = Label(Image(v.prevFrame), Borderwidth(1), Relief("sunken"))
	v.profileLabel = Label(Image(v.prevProfiles), Borderwidth(1), Relief("sunken"))
	Grid(v.frameLabel, Row(row), Column(0), Columnspan(2), Sticky("nw"), Padx("0.4m"), Pady("0.4m"))
	Grid(v.profileLabel, Row(row), Column(2), Columnspan(2), Sticky("nw"), Padx("0.4m"), Pady("0.4m"))
	return v
}

func placeholderPhoto(w, h int) *Img {
	return NewPhoto(Data(images.EncodePNG(image.NewGray(image.Rect(0, 0, w, h)))))
}

func (v *capturePreview) UpdateFrame(img image.Image) {
	if v.frameLabel == nil || img == nil {
		return
	}
	// Presenter output already fits; ScaleToFit is then a no-op.
	data := images.EncodePNG(images.ScaleToFit(img, v.maxW, v.maxH))
	if v.prevFrame != nil {
		v.prevFrame.Delete()
	}
	v.prevFrame = NewPhoto(Data(data))
	v.frameLabel.Configure(Image(v.prevFrame))
}

func (v *capturePreview) UpdateProfiles(pngData []byte) {
	if v.profileLabel == nil || len(pngData) == 0 {
		return
	}
	if v.prevProfiles != nil {
		v.prevProfiles.Delete()
	}
	v.prevProfiles = NewPhoto(Data(pngData))
	v.profileLabel.Configure(Image(v.prevProfiles))
}

func (v *capturePreview) Reset() {
	if v.frameLabel != nil {
		if v.prevFrame != nil {
			v.prevFrame.Delete()
		}
		v.prevFrame = placeholderPhoto(v.maxW, v.maxH)
		v.frameLabel.Configure(Image(v.prevFrame))
	}
	if v.profileLabel != nil {
		if v.prevProfiles != nil {
			v.prevProfiles.Delete()
		}
		v.prevProfiles = placeholderPhoto(v.maxW, v.maxH)
		v.profileLabel.Configure(Image(v.prevProfiles))
	}
}
