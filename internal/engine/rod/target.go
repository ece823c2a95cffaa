package rod

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/bytedance/sonic"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const contextInfoJS = `(x, y) => {
	const element = document.elementFromPoint(x, y);
	const selection = window.getSelection() ? window.getSelection().toString() : '';
	if (!element) return { type: 'none', selection };
	const link = element.closest('a');
	const img = element.closest('img');
	return {
		type: link ? 'link' : (img ? 'image' : 'page'),
		url: link ? link.href : (img ? img.src : document.location.href),
		text: link ? link.innerText : '',
		selection,
	};
}`

const filePickerJS = `() => {
	const input = document.createElement('input');
	input.type = 'file';
	input.multiple = true;
	input.style.display = 'none';
	document.body.appendChild(input);
	input.click();
	document.body.removeChild(input);
}`

const languageJS = `(l) => {
	Object.defineProperty(navigator, 'language', { get: () => l, configurable: true });
	Object.defineProperty(navigator, 'languages', { get: () => [l, l.split('-')[0]], configurable: true });
}`

type target struct {
	owner  *browserContext
	page   *rod.Page
	id     engine.TargetID
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	frameFn       func(engine.Frame)
	chooser       proto.DOMBackendNodeID
	removeLangJS  func() error
	removeHeaders func()
}

func newTarget(owner *browserContext, page *rod.Page) *target {
	ctx, cancel := context.WithCancel(owner.ctx)
	return &target{
		owner:  owner,
		page:   page,
		id:     engine.TargetID(page.TargetID),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (t *target) ID() engine.TargetID { return t.id }

// init subscribes to page events and enables chooser interception.
func (t *target) init() error {
	emit := t.owner.opts.OnEvent
	wait := t.page.Context(t.ctx).EachEvent(
		func(e *proto.PageFrameNavigated) {
			if e.Frame != nil && e.Frame.ParentID == "" {
				emit(engine.Navigated{ID: t.id, URL: e.Frame.URL})
			}
		},
		func(e *proto.PageNavigatedWithinDocument) {
			if e.FrameID == t.page.FrameID {
				emit(engine.Navigated{ID: t.id, URL: e.URL})
			}
		},
		func(*proto.PageDomContentEventFired) {
			emit(engine.DOMReady{ID: t.id})
		},
		func(*proto.PageLoadEventFired) {
			emit(engine.Loaded{ID: t.id})
		},
		func(e *proto.PageFileChooserOpened) {
			t.mu.Lock()
			t.chooser = e.BackendNodeID
			t.mu.Unlock()
			emit(engine.FileChooserOpened{
				ID:       t.id,
				Multiple: e.Mode == proto.PageFileChooserOpenedModeSelectMultiple,
			})
		},
		func(e *proto.PageScreencastFrame) {
			t.mu.Lock()
			fn := t.frameFn
			t.mu.Unlock()
			if fn == nil {
				_ = proto.PageScreencastFrameAck{SessionID: e.SessionID}.Call(t.page)
				return
			}
			fn(engine.Frame{Seq: e.SessionID, Data: e.Data, Metadata: frameMetadata(e.Metadata)})
		},
	)
	go wait()

	if err := (proto.PageSetInterceptFileChooserDialog{Enabled: true}).Call(t.page); err != nil {
		t.cancel()
		return fmt.Errorf("intercept file chooser: %w", wrap(err))
	}
	if w, h := t.owner.cfg.ViewportWidth, t.owner.cfg.ViewportHeight; w > 0 && h > 0 {
		if err := t.SetViewport(t.ctx, w, h); err != nil {
			t.owner.logger.Debug("Initial viewport failed", zap.String("tab_id", string(t.id)), zap.Error(err))
		}
	}
	return nil
}

// stop ends event delivery for the target.
func (t *target) stop() {
	t.cancel()
}

func (t *target) on(ctx context.Context) *rod.Page {
	return t.page.Context(ctx)
}

func (t *target) Navigate(ctx context.Context, url string) error {
	return wrap(t.on(ctx).Navigate(url))
}

func (t *target) WaitLoad(ctx context.Context) error {
	return wrap(t.on(ctx).WaitLoad())
}

func (t *target) Back(ctx context.Context) error {
	return wrap(t.on(ctx).NavigateBack())
}

func (t *target) Forward(ctx context.Context) error {
	return wrap(t.on(ctx).NavigateForward())
}

func (t *target) Reload(ctx context.Context) error {
	return wrap(t.on(ctx).Reload())
}

func (t *target) StopLoading(ctx context.Context) error {
	return wrap(t.on(ctx).StopLoading())
}

func (t *target) URL(ctx context.Context) (string, error) {
	info, err := t.on(ctx).Info()
	if err != nil {
		return "", wrap(err)
	}
	return info.URL, nil
}

func (t *target) Title(ctx context.Context) (string, error) {
	info, err := t.on(ctx).Info()
	if err != nil {
		return "", wrap(err)
	}
	return info.Title, nil
}

func (t *target) Activate(ctx context.Context) error {
	_, err := t.on(ctx).Activate()
	return wrap(err)
}

func (t *target) SetViewport(ctx context.Context, width, height int) error {
	return wrap(t.on(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}))
}

// SetLanguage sets Accept-Language and the navigator language for the current
// and every later document.
func (t *target) SetLanguage(ctx context.Context, lang string) error {
	page := t.on(ctx)

	t.mu.Lock()
	removeHeaders, removeJS := t.removeHeaders, t.removeLangJS
	t.mu.Unlock()
	if removeHeaders != nil {
		removeHeaders()
	}
	if removeJS != nil {
		_ = removeJS()
	}

	cleanup, err := page.SetExtraHeaders([]string{"Accept-Language", AcceptLanguage(lang)})
	if err != nil {
		return wrap(err)
	}
	script := fmt.Sprintf("(%s)(%q)", languageJS, lang)
	remove, err := page.EvalOnNewDocument(script)
	if err != nil {
		cleanup()
		return wrap(err)
	}

	t.mu.Lock()
	t.removeHeaders, t.removeLangJS = cleanup, remove
	t.mu.Unlock()

	_, err = page.Eval(languageJS, lang)
	return wrap(err)
}

func (t *target) Mouse(_ context.Context, in engine.MouseInput) error {
	return wrap(dispatchMouse(t.page.Mouse, in))
}

func (t *target) Key(ctx context.Context, in engine.KeyInput) error {
	return wrap(dispatchKey(t.page.Keyboard, t.on(ctx).InsertText, in))
}

func (t *target) ContextInfo(ctx context.Context, x, y float64) (engine.ContextInfo, error) {
	res, err := t.on(ctx).Evaluate(&rod.EvalOptions{
		JS:      contextInfoJS,
		JSArgs:  []interface{}{x, y},
		ByValue: true,
	})
	if err != nil {
		return engine.ContextInfo{}, wrap(err)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return engine.ContextInfo{}, fmt.Errorf("marshal context info: %w", err)
	}
	var info engine.ContextInfo
	if err := sonic.Unmarshal(raw, &info); err != nil {
		return engine.ContextInfo{}, fmt.Errorf("decode context info: %w", err)
	}
	return info, nil
}

func (t *target) StartScreencast(ctx context.Context, opts engine.ScreencastOptions, fn func(engine.Frame)) error {
	t.mu.Lock()
	t.frameFn = fn
	t.mu.Unlock()

	quality, maxWidth, maxHeight := opts.Quality, opts.MaxWidth, opts.MaxHeight
	err := proto.PageStartScreencast{
		Format:    proto.PageStartScreencastFormatJpeg,
		Quality:   &quality,
		MaxWidth:  &maxWidth,
		MaxHeight: &maxHeight,
	}.Call(t.on(ctx))
	if err != nil {
		t.mu.Lock()
		t.frameFn = nil
		t.mu.Unlock()
	}
	return wrap(err)
}

func (t *target) AckFrame(ctx context.Context, seq int) error {
	return wrap(proto.PageScreencastFrameAck{SessionID: seq}.Call(t.on(ctx)))
}

func (t *target) StopScreencast(ctx context.Context) error {
	t.mu.Lock()
	t.frameFn = nil
	t.mu.Unlock()
	return wrap(proto.PageStopScreencast{}.Call(t.on(ctx)))
}

func (t *target) AcceptFiles(ctx context.Context, paths []string) error {
	t.mu.Lock()
	node := t.chooser
	t.chooser = 0
	t.mu.Unlock()

	return wrap(proto.DOMSetFileInputFiles{
		Files:         paths,
		BackendNodeID: node,
	}.Call(t.on(ctx)))
}

// CancelFileChooser drops the intercepted chooser; with interception on,
// the page sees no selection until files are set.
func (t *target) CancelFileChooser(context.Context) error {
	t.mu.Lock()
	t.chooser = 0
	t.mu.Unlock()
	return nil
}

func (t *target) OpenFilePicker(ctx context.Context) error {
	_, err := t.on(ctx).Evaluate(rod.Eval(filePickerJS).ByUser())
	return wrap(err)
}

func (t *target) Close(ctx context.Context) error {
	t.owner.forget(t.page.TargetID)
	defer t.cancel()
	return wrap(t.on(ctx).Close())
}

func frameMetadata(m interface{}) engine.FrameMetadata {
	var out engine.FrameMetadata
	raw, err := sonic.Marshal(m)
	if err != nil {
		return out
	}
	_ = sonic.Unmarshal(raw, &out)
	return out
}
