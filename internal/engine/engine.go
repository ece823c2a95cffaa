package engine

import (
	"context"
)

// TargetID identifies a render target. It is assigned by the engine.
type TargetID string

// Engine is the process-wide browser the sessions share.
type Engine interface {
	// NewContext opens an isolated browsing context. Events for every target
	// of the context, including popups, are delivered to opts.OnEvent.
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// ContextOptions configures an isolated browsing context.
type ContextOptions struct {
	DownloadDir string
	UserAgent   string
	// OnEvent must not block; it is called from engine goroutines.
	OnEvent func(Event)
}

// Context is one session's isolated browsing context.
type Context interface {
	NewTarget(ctx context.Context) (Target, error)
	Close() error
}

// Target is one addressable renderable surface (a tab).
type Target interface {
	ID() TargetID

	Navigate(ctx context.Context, url string) error
	WaitLoad(ctx context.Context) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	StopLoading(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	Activate(ctx context.Context) error
	SetViewport(ctx context.Context, width, height int) error
	SetLanguage(ctx context.Context, lang string) error

	Mouse(ctx context.Context, in MouseInput) error
	Key(ctx context.Context, in KeyInput) error
	ContextInfo(ctx context.Context, x, y float64) (ContextInfo, error)

	// StartScreencast delivers frames to fn until StopScreencast. The engine
	// sends the next frame only after AckFrame for the previous one.
	StartScreencast(ctx context.Context, opts ScreencastOptions, fn func(Frame)) error
	AckFrame(ctx context.Context, seq int) error
	StopScreencast(ctx context.Context) error

	AcceptFiles(ctx context.Context, paths []string) error
	CancelFileChooser(ctx context.Context) error
	OpenFilePicker(ctx context.Context) error

	Close(ctx context.Context) error
}

// ScreencastOptions bounds frame encoding.
type ScreencastOptions struct {
	Quality   int
	MaxWidth  int
	MaxHeight int
}

// Frame is one encoded viewport image.
type Frame struct {
	Seq      int
	Data     []byte
	Metadata FrameMetadata
}

// FrameMetadata describes the viewport a frame was captured from.
type FrameMetadata struct {
	OffsetTop       float64 `json:"offsetTop"`
	PageScaleFactor float64 `json:"pageScaleFactor"`
	DeviceWidth     float64 `json:"deviceWidth"`
	DeviceHeight    float64 `json:"deviceHeight"`
	ScrollOffsetX   float64 `json:"scrollOffsetX"`
	ScrollOffsetY   float64 `json:"scrollOffsetY"`
}

// MouseAction is the kind of pointer input.
type MouseAction string

const (
	MouseMove  MouseAction = "mousemove"
	MouseDown  MouseAction = "mousedown"
	MouseUp    MouseAction = "mouseup"
	MouseWheel MouseAction = "wheel"
)

type MouseInput struct {
	Action MouseAction
	X, Y   float64
	Button string
	DeltaY float64
}

// KeyAction is the kind of keyboard input.
type KeyAction string

const (
	KeyDown KeyAction = "keydown"
	KeyUp   KeyAction = "keyup"
)

type KeyInput struct {
	Action KeyAction
	Key    string
}

// ContextInfo describes what sits under a point of the page.
type ContextInfo struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	Text      string `json:"text,omitempty"`
	Selection string `json:"selection,omitempty"`
}
