package fakecam

import (
	"fmt"
	"sync"

	camerasession "github.com/e7canasta/orion-care-sensor/modules/camera-session"
	"github.com/e7canasta/orion-care-sensor/modules/camera-session/looper"
)

// FrameSource is a fake camerasession.FrameSource.
type FrameSource struct {
	Log *Log
	// SurfaceErr fails CreateSurface
	SurfaceErr error

	mu       sync.Mutex
	listener camerasession.FrameListener
	poster   looper.Poster
	inUse    bool
	nextID   int
	surfaces []*Surface
}

// NewFrameSource returns a frame source logging into log.
func NewFrameSource(log *Log) *FrameSource {
	return &FrameSource{Log: log}
}

// CreateSurface implements camerasession.FrameSource.
func (f *FrameSource) CreateSurface(width, height int) (camerasession.Surface, error) {
	if f.SurfaceErr != nil {
		return nil, f.SurfaceErr
	}
	f.Log.add(EventSurfaceCreate)
	s := &Surface{log: f.Log, Width: width, Height: height}
	f.mu.Lock()
	f.surfaces = append(f.surfaces, s)
	f.mu.Unlock()
	return s, nil
}

// StartListening implements camerasession.FrameSource.
func (f *FrameSource) StartListening(l camerasession.FrameListener, poster looper.Poster) {
	f.Log.add(EventListenStart)
	f.mu.Lock()
	f.listener = l
	f.poster = poster
	f.mu.Unlock()
}

// StopListening implements camerasession.FrameSource.
func (f *FrameSource) StopListening() {
	f.Log.add(EventListenStop)
	f.mu.Lock()
	f.listener = nil
	f.mu.Unlock()
}

// ReturnTextureFrame implements camerasession.FrameSource.
func (f *FrameSource) ReturnTextureFrame() {
	f.Log.add(EventFrameReturn)
	f.mu.Lock()
	f.inUse = false
	f.mu.Unlock()
}

// IsTextureInUse implements camerasession.FrameSource.
func (f *FrameSource) IsTextureInUse() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inUse
}

// Emit posts one frame to the listener. It returns false when nobody listens.
func (f *FrameSource) Emit(frame camerasession.TextureFrame) bool {
	f.mu.Lock()
	l, poster := f.listener, f.poster
	if l == nil {
		f.mu.Unlock()
		return false
	}
	if frame.TextureID == 0 {
		f.nextID++
		frame.TextureID = f.nextID
	}
	f.inUse = true
	f.mu.Unlock()

	return poster.Post(func(tok looper.Token) {
		l.OnTextureFrameAvailable(tok, frame)
	})
}

// Surfaces returns every surface created so far.
func (f *FrameSource) Surfaces() []*Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Surface(nil), f.surfaces...)
}

// Surface is a fake camerasession.Surface.
type Surface struct {
	log    *Log
	Width  int
	Height int

	mu       sync.Mutex
	released bool
}

// Release implements camerasession.Surface.
func (s *Surface) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()
	s.log.add(EventSurfaceRelease)
}

// Released reports whether Release was called.
func (s *Surface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Surface) String() string {
	return fmt.Sprintf("surface %dx%d", s.Width, s.Height)
}
