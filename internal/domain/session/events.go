package session

import (
	"context"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"go.uber.org/zap"
)

// onEngineEvent is the engine callback. It only queues; handling happens on
// the loop.
func (s *Session) onEngineEvent(ev engine.Event) {
	s.post(func() { s.handleEngineEvent(ev) })
}

func (s *Session) handleEngineEvent(ev engine.Event) {
	if popup, ok := ev.(engine.PopupOpened); ok {
		s.adoptPopup(popup)
		return
	}

	t, ok := s.registry.Get(ev.Target())
	if !ok {
		return
	}

	switch e := ev.(type) {
	case engine.Navigated:
		if t.SetURL(e.URL) {
			s.emit(urlChanged(e.ID, e.URL))
		}
	case engine.DOMReady:
		s.submit(t, s.opts.CommandTimeout, func(ctx context.Context, target engine.Target) {
			raw, err := target.Title(ctx)
			s.engineFailed(e.ID, "title", err)
			if title := cleanTitle(raw); t.SetTitle(title) {
				s.postFor(e.ID, titleChanged(e.ID, title))
			}
		})
	case engine.Loaded:
		if t.MarkReady() {
			s.emit(tabEvent(EvtLoadingStop, e.ID))
		}
	case engine.FileChooserOpened:
		s.uploads.Request(e.ID, e.Multiple)
		s.emit(fileRequested(e.ID, e.Multiple))
	case engine.Destroyed:
		s.logger.Debug("Target destroyed by page", zap.String("tab_id", string(e.ID)))
		s.evict(e.ID)
	}
}

// adoptPopup turns a window opened by a page into a tab, or closes it when
// the session is at its tab cap.
func (s *Session) adoptPopup(e engine.PopupOpened) {
	if _, ok := s.registry.Get(e.ID); ok || e.Popup == nil {
		return
	}
	if s.registry.Full() {
		s.logger.Debug("Closing popup over tab limit", zap.String("tab_id", string(e.ID)), zap.String("opener", string(e.Opener)))
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
		defer cancel()
		s.engineFailed(e.ID, "close popup", e.Popup.Close(ctx))
		return
	}
	s.adopt(e.Popup)
}
