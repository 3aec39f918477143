package main

import (
	"bytes"
	"encoding/binary"
	"time"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// inputEventSize is the size of struct input_event on 64-bit kernels.
var inputEventSize = binary.Size(inputEvent{})

// Time is the kernel timestamp of the event.
func (ev inputEvent) Time() time.Time {
	return time.Unix(ev.Sec, ev.Usec*int64(time.Microsecond))
}

// decodeInputEvents decodes every complete event in buf and returns the
// number of bytes consumed.
func decodeInputEvents(buf []byte, fn func(inputEvent)) int {
	reader := bytes.NewReader(nil)
	n := 0
	for len(buf)-n >= inputEventSize {
		reader.Reset(buf[n : n+inputEventSize])
		n += inputEventSize

		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}
		fn(ev)
	}
	return n
}

// keyActivates reports whether ev is a fresh press of the activation key.
//
// Events stamped before notBefore were queued by the kernel before we were
// listening (startup, or while Armed) and are discarded.
func keyActivates(ev inputEvent, keycode uint16, notBefore time.Time) bool {
	if ev.Type != EV_KEY || ev.Code != keycode || ev.Value != evValuePress {
		return false
	}
	return !ev.Time().Before(notBefore)
}

// maxSlots bounds the multi-touch slot table; larger slot numbers are ignored.
const maxSlots = 64

// touchSlot is one multi-touch contact (protocol B).
type touchSlot struct {
	active bool // ABS_MT_TRACKING_ID >= 0
	x, y   int32
}

// contactSnapshot is the contact state as queried from the kernel.
// Slots is nil for single-touch devices.
type contactSnapshot struct {
	Button bool
	X, Y   int32
	Slot   int32
	Slots  []touchSlot
}

// contactTracker rebuilds the touch surface state from the event stream.
//
// Multi-touch devices keep per-slot positions that follow ABS_MT_SLOT;
// the kernel does not mirror them into the axis values EVIOCGABS returns,
// so the stream is the only source. Single-touch devices report ABS_X/ABS_Y
// and BTN_TOUCH. The primary contact is the lowest active slot.
type contactTracker struct {
	multi  bool
	slot   int32
	slots  []touchSlot
	button bool
	x, y   int32

	moved bool // position reported since the last take()

	// After SYN_DROPPED everything up to the next SYN_REPORT is discarded
	// and the state has to be queried again.
	dropping bool
	needSync bool
}

func (c *contactTracker) current() *touchSlot {
	if c.slot < 0 || c.slot >= maxSlots {
		return nil
	}
	for int(c.slot) >= len(c.slots) {
		c.slots = append(c.slots, touchSlot{})
	}
	return &c.slots[c.slot]
}

func (c *contactTracker) observe(ev inputEvent) {
	if ev.Type == EV_SYN {
		switch ev.Code {
		case SYN_DROPPED:
			c.dropping = true
		case SYN_REPORT:
			if c.dropping {
				c.dropping = false
				c.needSync = true
			}
		}
		return
	}
	if c.dropping {
		return
	}

	switch ev.Type {
	case EV_KEY:
		if ev.Code == BTN_TOUCH {
			c.button = ev.Value != evValueRelease
		}
	case EV_ABS:
		switch ev.Code {
		case ABS_MT_SLOT:
			c.multi = true
			c.slot = ev.Value
		case ABS_MT_TRACKING_ID:
			c.multi = true
			if s := c.current(); s != nil {
				s.active = ev.Value >= 0
			}
		case ABS_MT_POSITION_X, ABS_MT_POSITION_Y:
			c.multi = true
			s := c.current()
			if s == nil {
				return
			}
			if ev.Code == ABS_MT_POSITION_X {
				s.x = ev.Value
			} else {
				s.y = ev.Value
			}
			c.moved = true
		case ABS_X, ABS_Y:
			if ev.Code == ABS_X {
				c.x = ev.Value
			} else {
				c.y = ev.Value
			}
			if !c.multi {
				c.button = true
				c.moved = true
			}
		}
	}
}

// restore replaces the tracked state with a kernel snapshot.
func (c *contactTracker) restore(s contactSnapshot) {
	c.multi = s.Slots != nil
	c.slot = s.Slot
	c.slots = append(c.slots[:0], s.Slots...)
	c.button = s.Button
	c.x, c.y = s.X, s.Y
	c.dropping = false
	c.needSync = false
	c.moved = true
}

// position returns the primary contact; ok is false when no finger is down.
func (c *contactTracker) position() (Point, bool) {
	if c.multi {
		for _, s := range c.slots {
			if s.active {
				return Point{X: float64(s.x), Y: float64(s.y)}, true
			}
		}
		return Point{}, false
	}
	if !c.button {
		return Point{}, false
	}
	return Point{X: float64(c.x), Y: float64(c.y)}, true
}

func (c *contactTracker) touching() bool {
	_, ok := c.position()
	return ok
}

// take reports whether a new sample is worth reading and clears the moved flag.
func (c *contactTracker) take() bool {
	m := c.moved
	c.moved = false
	return m && c.touching()
}
