package engine

// Event is a notification pushed by the engine about one target.
type Event interface {
	Target() TargetID
}

// Navigated reports a main-frame URL change.
type Navigated struct {
	ID  TargetID
	URL string
}

// DOMReady reports that the document finished parsing.
type DOMReady struct {
	ID TargetID
}

// Loaded reports that the page load event fired.
type Loaded struct {
	ID TargetID
}

// FileChooserOpened reports an intercepted file chooser.
type FileChooserOpened struct {
	ID       TargetID
	Multiple bool
}

// PopupOpened reports a target opened by one of the context's targets.
type PopupOpened struct {
	ID     TargetID
	Opener TargetID
	Popup  Target
}

// Destroyed reports a target closed from the page side.
type Destroyed struct {
	ID TargetID
}

func (e Navigated) Target() TargetID         { return e.ID }
func (e DOMReady) Target() TargetID          { return e.ID }
func (e Loaded) Target() TargetID            { return e.ID }
func (e FileChooserOpened) Target() TargetID { return e.ID }
func (e PopupOpened) Target() TargetID       { return e.ID }
func (e Destroyed) Target() TargetID         { return e.ID }
