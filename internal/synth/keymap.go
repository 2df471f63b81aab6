// File: internal/synth/keymap.go
// Description: Translates xdotool-style key chords ("ctrl+shift+t", "Return")
// into host key events: a modifier bitmask plus the DOM key value and virtual
// key code of the final key.
package synth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/host"
)

// keyDef is the host-level identity of one named key.
type keyDef struct {
	Key string // DOM key value
	VK  int    // Windows virtual key code
}

// modifierNames maps chord modifier tokens (lowercased) to the host bitmask.
// Both xdotool and common shorthand spellings are accepted.
var modifierNames = map[string]host.Modifier{
	"ctrl":    host.ModCtrl,
	"control": host.ModCtrl,
	"alt":     host.ModAlt,
	"shift":   host.ModShift,
	"super":   host.ModMeta,
	"meta":    host.ModMeta,
	"cmd":     host.ModMeta,
	"win":     host.ModMeta,
}

// namedKeys maps xdotool key names to their host identity. Names are matched
// case-insensitively; aliases cover the spellings models commonly emit.
var namedKeys = map[string]keyDef{
	"return":    {"Enter", 13},
	"enter":     {"Enter", 13},
	"kp_enter":  {"Enter", 13},
	"tab":       {"Tab", 9},
	"space":     {" ", 32},
	"backspace": {"Backspace", 8},
	"delete":    {"Delete", 46},
	"insert":    {"Insert", 45},
	"escape":    {"Escape", 27},
	"esc":       {"Escape", 27},
	"up":        {"ArrowUp", 38},
	"down":      {"ArrowDown", 40},
	"left":      {"ArrowLeft", 37},
	"right":     {"ArrowRight", 39},
	"home":      {"Home", 36},
	"end":       {"End", 35},
	"page_up":   {"PageUp", 33},
	"pageup":    {"PageUp", 33},
	"prior":     {"PageUp", 33},
	"page_down": {"PageDown", 34},
	"pagedown":  {"PageDown", 34},
	"next":      {"PageDown", 34},
	"minus":     {"-", 189},
	"equal":     {"=", 187},
	"plus":      {"+", 187},
	"f1":        {"F1", 112},
	"f2":        {"F2", 113},
	"f3":        {"F3", 114},
	"f4":        {"F4", 115},
	"f5":        {"F5", 116},
	"f6":        {"F6", 117},
	"f7":        {"F7", 118},
	"f8":        {"F8", 119},
	"f9":        {"F9", 120},
	"f10":       {"F10", 121},
	"f11":       {"F11", 122},
	"f12":       {"F12", 123},
}

// chord is a fully resolved key combination ready for dispatch.
type chord struct {
	Modifiers host.Modifier
	Key       keyDef
	// Text is the character the final key produces, empty for non-printing
	// keys.
	Text string
}

// parseChord resolves an xdotool-style chord string. The last '+'-separated
// token is the key; everything before it must be a modifier.
func parseChord(spec string) (chord, error) {
	tokens := strings.Split(spec, "+")
	if len(tokens) == 0 || strings.TrimSpace(spec) == "" {
		return chord{}, fmt.Errorf("%w: empty key chord", schemas.ErrMalformedAction)
	}

	var c chord
	for _, token := range tokens[:len(tokens)-1] {
		mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(token))]
		if !ok {
			return chord{}, fmt.Errorf("%w: unknown modifier %q in chord %q", schemas.ErrMalformedAction, token, spec)
		}
		c.Modifiers |= mod
	}

	last := strings.TrimSpace(tokens[len(tokens)-1])
	if last == "" {
		// A trailing '+' means the key itself is '+'.
		last = "plus"
	}

	if def, ok := namedKeys[strings.ToLower(last)]; ok {
		c.Key = def
		if len(def.Key) == 1 {
			c.Text = def.Key
		}
		return c, nil
	}

	// Bare modifier as the final token, e.g. "super" to open a launcher.
	if mod, ok := modifierNames[strings.ToLower(last)]; ok {
		c.Modifiers |= mod
		c.Key = modifierKeyDef(mod)
		return c, nil
	}

	// Single printable character.
	if utf8.RuneCountInString(last) == 1 {
		r, _ := utf8.DecodeRuneInString(last)
		if !unicode.IsControl(r) {
			c.Key = keyDef{Key: string(r), VK: charVK(r)}
			c.Text = string(r)
			if unicode.IsUpper(r) {
				c.Modifiers |= host.ModShift
			}
			return c, nil
		}
	}

	return chord{}, fmt.Errorf("%w: unknown key %q in chord %q", schemas.ErrMalformedAction, last, spec)
}

// modifierKeyDef returns the key identity of a modifier pressed on its own.
func modifierKeyDef(mod host.Modifier) keyDef {
	switch mod {
	case host.ModCtrl:
		return keyDef{"Control", 17}
	case host.ModAlt:
		return keyDef{"Alt", 18}
	case host.ModShift:
		return keyDef{"Shift", 16}
	default:
		return keyDef{"Meta", 91}
	}
}

// charVK maps a printable rune to its virtual key code. Unmapped runes return
// zero; the host then relies on the Key field alone.
func charVK(r rune) int {
	switch {
	case r >= 'a' && r <= 'z':
		return int(unicode.ToUpper(r))
	case r >= 'A' && r <= 'Z':
		return int(r)
	case r >= '0' && r <= '9':
		return int(r)
	case r == ' ':
		return 32
	}
	return 0
}

// modifierOrder is the press order for held modifiers; release happens in
// reverse.
var modifierOrder = []host.Modifier{host.ModCtrl, host.ModAlt, host.ModShift, host.ModMeta}

// heldModifiers expands a bitmask into the individual modifiers in press
// order.
func heldModifiers(m host.Modifier) []host.Modifier {
	var out []host.Modifier
	for _, mod := range modifierOrder {
		if m&mod != 0 {
			out = append(out, mod)
		}
	}
	return out
}
