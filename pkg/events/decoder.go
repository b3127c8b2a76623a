package events

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const esc = 0x1b

// TerminalDecoder turns raw terminal bytes into inputs. It understands SGR
// (1006) mouse reports, common cursor key sequences, control keys and UTF-8
// text. Key names follow the DOM KeyboardEvent.key vocabulary.
type TerminalDecoder struct {
	pending []byte
}

// Feed decodes as much of data as possible. Incomplete escape sequences and
// partial runes are held until the next call, including a trailing ESC that
// may begin a sequence split across reads. stop is true once Ctrl-C or Ctrl-D
// is seen; bytes after it are discarded.
func (d *TerminalDecoder) Feed(data []byte) (inputs []Input, stop bool) {
	buf := append(d.pending, data...)
	d.pending = nil

	for len(buf) > 0 {
		b := buf[0]
		switch {
		case b == 0x03 || b == 0x04:
			return inputs, true
		case b == esc:
			in, n, ok := decodeEscape(buf)
			if !ok {
				d.pending = append([]byte(nil), buf...)
				return inputs, false
			}
			if in != nil {
				inputs = append(inputs, *in)
			}
			buf = buf[n:]
		case b == '\r' || b == '\n':
			inputs = append(inputs, Key("Enter"))
			buf = buf[1:]
		case b == 0x7f || b == 0x08:
			inputs = append(inputs, Key("Backspace"))
			buf = buf[1:]
		case b == '\t':
			inputs = append(inputs, Key("Tab"))
			buf = buf[1:]
		case b == 0x00:
			inputs = append(inputs, Key("Control+ "))
			buf = buf[1:]
		case b < 0x20:
			inputs = append(inputs, Key("Control+"+string(rune('a'+b-1))))
			buf = buf[1:]
		default:
			if !utf8.FullRune(buf) {
				d.pending = append([]byte(nil), buf...)
				return inputs, false
			}
			r, size := utf8.DecodeRune(buf)
			if r != utf8.RuneError {
				inputs = append(inputs, Key(string(r)))
			}
			buf = buf[size:]
		}
	}
	return inputs, false
}

// PendingEscape reports whether the decoder holds a lone ESC that Flush would
// turn into an Escape key.
func (d *TerminalDecoder) PendingEscape() bool {
	return len(d.pending) == 1 && d.pending[0] == esc
}

// Flush emits a held lone ESC as an Escape key. Callers use it once no more
// input has arrived for a short while.
func (d *TerminalDecoder) Flush() []Input {
	if !d.PendingEscape() {
		return nil
	}
	d.pending = nil
	return []Input{Key("Escape")}
}

var cursorKeys = map[byte]string{
	'A': "ArrowUp",
	'B': "ArrowDown",
	'C': "ArrowRight",
	'D': "ArrowLeft",
	'H': "Home",
	'F': "End",
}

var tildeKeys = map[string]string{
	"2": "Insert",
	"3": "Delete",
	"5": "PageUp",
	"6": "PageDown",
}

// decodeEscape parses one sequence starting at buf[0] == ESC. It returns the
// decoded input (nil for sequences that carry nothing to record), the bytes
// consumed, and false when the sequence is incomplete.
func decodeEscape(buf []byte) (*Input, int, bool) {
	if len(buf) == 1 {
		return nil, 0, false
	}
	switch buf[1] {
	case '[':
	case 'O':
		if len(buf) < 3 {
			return nil, 0, false
		}
		if name, ok := cursorKeys[buf[2]]; ok {
			in := Key(name)
			return &in, 3, true
		}
		return nil, 3, true
	default:
		// Lone ESC followed by ordinary input, including Alt-modified keys.
		in := Key("Escape")
		return &in, 1, true
	}

	// CSI: parameters and intermediates end at a final byte in 0x40..0x7e.
	end := -1
	for i := 2; i < len(buf); i++ {
		if buf[i] >= 0x40 && buf[i] <= 0x7e {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, 0, false
	}
	params := string(buf[2:end])
	final := buf[end]
	n := end + 1

	if strings.HasPrefix(params, "<") && (final == 'M' || final == 'm') {
		in, ok := decodeSGRMouse(params[1:], final)
		if !ok {
			return nil, n, true
		}
		return &in, n, true
	}
	if name, ok := cursorKeys[final]; ok {
		in := Key(name)
		return &in, n, true
	}
	if final == '~' {
		if name, ok := tildeKeys[params]; ok {
			in := Key(name)
			return &in, n, true
		}
	}
	return nil, n, true
}

// decodeSGRMouse handles "Cb;Cx;Cy". Motion reports (Cb bit 32) and button
// presses yield a pointer position; releases and wheel events are ignored.
// Coordinates are 1-based terminal cells.
func decodeSGRMouse(params string, final byte) (Input, bool) {
	parts := strings.Split(params, ";")
	if len(parts) != 3 {
		return Input{}, false
	}
	cb, err1 := strconv.Atoi(parts[0])
	cx, err2 := strconv.Atoi(parts[1])
	cy, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Input{}, false
	}
	if final == 'm' || cb&64 != 0 {
		return Input{}, false
	}
	return Mouse(float64(cx), float64(cy)), true
}
