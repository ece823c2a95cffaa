package rod

import (
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// keyboard is the part of rod.Keyboard input dispatch needs. rod tracks held
// keys and applies their modifiers to every later event.
type keyboard interface {
	Press(key input.Key) error
	Release(key input.Key) error
}

// mouse is the part of rod.Mouse input dispatch needs.
type mouse interface {
	MoveTo(p proto.Point) error
	Down(button proto.InputMouseButton, clickCount int) error
	Up(button proto.InputMouseButton, clickCount int) error
	Scroll(offsetX, offsetY float64, steps int) error
}

// namedKeys maps DOM KeyboardEvent.key names to rod keys. Modifiers map to
// their left-hand variant.
var namedKeys = map[string]input.Key{
	"Escape":      input.Escape,
	"Enter":       input.Enter,
	"Tab":         input.Tab,
	"Backspace":   input.Backspace,
	"Delete":      input.Delete,
	"Insert":      input.Insert,
	"Home":        input.Home,
	"End":         input.End,
	"PageUp":      input.PageUp,
	"PageDown":    input.PageDown,
	"ArrowLeft":   input.ArrowLeft,
	"ArrowUp":     input.ArrowUp,
	"ArrowRight":  input.ArrowRight,
	"ArrowDown":   input.ArrowDown,
	"CapsLock":    input.CapsLock,
	"NumLock":     input.NumLock,
	"ScrollLock":  input.ScrollLock,
	"Pause":       input.Pause,
	"PrintScreen": input.PrintScreen,
	"ContextMenu": input.ContextMenu,
	"Shift":       input.ShiftLeft,
	"Control":     input.ControlLeft,
	"Alt":         input.AltLeft,
	"AltGraph":    input.AltGraph,
	"Meta":        input.MetaLeft,
	"Space":       input.Space,
	"F1":          input.F1,
	"F2":          input.F2,
	"F3":          input.F3,
	"F4":          input.F4,
	"F5":          input.F5,
	"F6":          input.F6,
	"F7":          input.F7,
	"F8":          input.F8,
	"F9":          input.F9,
	"F10":         input.F10,
	"F11":         input.F11,
	"F12":         input.F12,
}

// unshifted maps a shifted character back to its base key, e.g. "A" to "a".
var unshifted = func() map[input.Key]input.Key {
	m := map[input.Key]input.Key{}
	for r := rune(0x20); r < 0x7f; r++ {
		if s, ok := input.Key(r).Shift(); ok {
			m[s] = input.Key(r)
		}
	}
	return m
}()

// keyFor resolves a DOM key value. Printable ASCII maps to the US layout;
// anything else that is not a known name has no key.
func keyFor(name string) (input.Key, bool) {
	if k, ok := namedKeys[name]; ok {
		return k, true
	}
	if len(name) == 1 && name[0] >= 0x20 && name[0] < 0x7f {
		return input.Key(name[0]), true
	}
	return 0, false
}

// dispatchKey sends one key transition. Characters outside the layout are
// inserted as text on key down.
func dispatchKey(kb keyboard, insertText func(string) error, in engine.KeyInput) error {
	key, ok := keyFor(in.Key)
	switch in.Action {
	case engine.KeyDown:
		if ok {
			return kb.Press(key)
		}
		if utf8.RuneCountInString(in.Key) == 1 {
			return insertText(in.Key)
		}
	case engine.KeyUp:
		if !ok {
			return nil
		}
		// Shift may have been released between down and up, so the
		// character seen on up can differ in case from the pressed one.
		if err := kb.Release(key); err != nil {
			return err
		}
		if base, has := unshifted[key]; has {
			return kb.Release(base)
		}
		if shifted, has := key.Shift(); has {
			return kb.Release(shifted)
		}
	}
	return nil
}

var mouseButtons = map[string]proto.InputMouseButton{
	"":       proto.InputMouseButtonLeft,
	"left":   proto.InputMouseButtonLeft,
	"right":  proto.InputMouseButtonRight,
	"middle": proto.InputMouseButtonMiddle,
}

func mouseButton(name string) proto.InputMouseButton {
	if b, ok := mouseButtons[strings.ToLower(name)]; ok {
		return b
	}
	return proto.InputMouseButtonLeft
}

// dispatchMouse sends pointer input. Presses and wheel ticks happen at the
// last position moved to.
func dispatchMouse(m mouse, in engine.MouseInput) error {
	switch in.Action {
	case engine.MouseMove:
		return m.MoveTo(proto.Point{X: in.X, Y: in.Y})
	case engine.MouseDown:
		return m.Down(mouseButton(in.Button), 1)
	case engine.MouseUp:
		return m.Up(mouseButton(in.Button), 1)
	case engine.MouseWheel:
		return m.Scroll(0, in.DeltaY, 1)
	}
	return nil
}

// AcceptLanguage builds the header value for a BCP 47 tag, e.g.
// "es-ES" becomes "es-ES,es;q=0.9,en;q=0.8".
func AcceptLanguage(lang string) string {
	base, _, _ := strings.Cut(lang, "-")
	return lang + "," + base + ";q=0.9,en;q=0.8"
}
