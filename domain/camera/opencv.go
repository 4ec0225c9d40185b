//go:build gocv

package camera

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/soocke/beam-profiler-go/domain/beam"
	"gocv.io/x/gocv"
)

// OpenCVAvailable reports whether this binary was built with OpenCV support.
const OpenCVAvailable = true

// maxProbe bounds the device indices tried by OpenCVEnumerator.Count.
const maxProbe = 8

// OpenCV captures from a V4L2/DirectShow/AVFoundation device. A reader
// goroutine keeps only the newest frame so Capture never returns stale data
// older than one frame period.
type OpenCV struct {
	index int

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	width  int
	height int
	frames chan frameOrErr
	stop   chan struct{}
	wg     sync.WaitGroup
}

type frameOrErr struct {
	frame *beam.Frame
	err   error
}

// NewOpenCV returns a closed OpenCV device for the given index.
func NewOpenCV(index int) *OpenCV { return &OpenCV{index: index} }

func (o *OpenCV) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	vc, err := gocv.OpenVideoCapture(o.index)
	if err != nil {
		return fmt.Errorf("camera: open device %d: %w", o.index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("camera: device %d: %w", o.index, ErrNoCamera)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.vc = vc
	o.width = int(vc.Get(gocv.VideoCaptureFrameWidth))
	o.height = int(vc.Get(gocv.VideoCaptureFrameHeight))
	o.frames = make(chan frameOrErr, 1)
	o.stop = make(chan struct{})
	o.wg.Add(1)
	go o.readLoop(vc, o.frames, o.stop)
	return nil
}

func (o *OpenCV) SensorSize() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.width, o.height
}

// SetExposure uses the log2-seconds convention shared by the DirectShow
// and V4L2 backends.
func (o *OpenCV) SetExposure(ms float64) error {
	if ms <= 0 || math.IsNaN(ms) {
		return fmt.Errorf("camera: invalid exposure %v ms", ms)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.vc == nil {
		return ErrNotOpen
	}
	o.vc.Set(gocv.VideoCaptureAutoExposure, 0.25)
	o.vc.Set(gocv.VideoCaptureExposure, math.Log2(ms/1000))
	return nil
}

func (o *OpenCV) Capture(ctx context.Context, timeout time.Duration) (*beam.Frame, error) {
	o.mu.Lock()
	frames := o.frames
	o.mu.Unlock()
	if frames == nil {
		return nil, ErrNotOpen
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrTimeout
	case fe, ok := <-frames:
		if !ok {
			return nil, ErrNotOpen
		}
		return fe.frame, fe.err
	}
}

func (o *OpenCV) Close() error {
	o.mu.Lock()
	stop, vc := o.stop, o.vc
	o.stop, o.vc, o.frames = nil, nil, nil
	o.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	o.wg.Wait()
	return vc.Close()
}

func (o *OpenCV) readLoop(vc *gocv.VideoCapture, out chan frameOrErr, stop <-chan struct{}) {
	defer o.wg.Done()
	defer close(out)
	mat := gocv.NewMat()
	defer mat.Close()
	gray := gocv.NewMat()
	defer gray.Close()
	misses := 0
	for {
		select {
		case <-stop:
			return
		default:
		}
		var fe frameOrErr
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			misses++
			if misses < 50 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			fe.err = ErrDeviceLost
		} else {
			misses = 0
			fe.frame = matToFrame(mat, &gray)
		}
		// Replace any unconsumed frame with the newer one.
		select {
		case <-out:
		default:
		}
		select {
		case out <- fe:
		case <-stop:
			return
		}
		if fe.err != nil {
			<-stop
			return
		}
	}
}

func matToFrame(mat gocv.Mat, gray *gocv.Mat) *beam.Frame {
	src := mat
	if mat.Channels() != 1 {
		gocv.CvtColor(mat, gray, gocv.ColorBGRToGray)
		src = *gray
	}
	w, h := src.Cols(), src.Rows()
	b := src.ToBytes()
	f := beam.NewFrame(w, h)
	for i := range f.Pix {
		f.Pix[i] = int32(b[i])
	}
	return f
}

// OpenCVEnumerator probes device indices with OpenCV.
type OpenCVEnumerator struct{}

func (OpenCVEnumerator) Count() (int, error) {
	n := 0
	for i := 0; i < maxProbe; i++ {
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			break
		}
		opened := vc.IsOpened()
		vc.Close()
		if !opened {
			break
		}
		n++
	}
	return n, nil
}

func (OpenCVEnumerator) Select(index int) (Device, error) {
	if index < 0 {
		return nil, fmt.Errorf("camera: invalid device index %d", index)
	}
	return NewOpenCV(index), nil
}
