//go:build linux

package main

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// evdevDevice is a nonblocking /dev/input/eventN handle.
//
// Reads never block: EAGAIN means the kernel queue is empty. The daemon
// learns readiness from the poller instead.
type evdevDevice struct {
	path string
	fd   int
	buf  []byte
}

func openEvdev(path string) (*evdevDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &evdevDevice{
		path: path,
		fd:   fd,
		buf:  make([]byte, 64*inputEventSize),
	}, nil
}

func (d *evdevDevice) Fd() int { return d.fd }

func (d *evdevDevice) Close() error { return unix.Close(d.fd) }

// drain reads until the kernel queue is empty.
func (d *evdevDevice) drain(fn func(inputEvent)) error {
	for {
		n, err := unix.Read(d.fd, d.buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read from %s: %w", d.path, err)
		}
		if n == 0 {
			return fmt.Errorf("read from %s: device closed", d.path)
		}
		decodeInputEvents(d.buf[:n], fn)
	}
}

// absInfo mirrors struct input_absinfo.
type absInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

// EVIOCGABS(abs) = _IOR('E', 0x40 + abs, struct input_absinfo)
func evioCGAbs(code int) uintptr {
	return ioc(iocRead, uint32('E'), uint32(0x40+code), uint32(unsafe.Sizeof(absInfo{})))
}

// EVIOCGKEY(len) = _IOC(_IOC_READ, 'E', 0x18, len)
func evioCGKey(size int) uintptr {
	return ioc(iocRead, uint32('E'), 0x18, uint32(size))
}

// EVIOCGMTSLOTS(len) = _IOC(_IOC_READ, 'E', 0x0a, len)
func evioCGMTSlots(size int) uintptr {
	return ioc(iocRead, uint32('E'), 0x0a, uint32(size))
}

// EVIOCGRAB = _IOW('E', 0x90, int)
func evioCGrab() uintptr {
	return ioc(iocWrite, uint32('E'), 0x90, uint32(unsafe.Sizeof(int32(0))))
}

// keyMax is KEY_MAX from <linux/input-event-codes.h>.
const keyMax = 0x2ff

// absAxis returns the kernel's axis info. ok is false when the device does
// not have the axis.
func (d *evdevDevice) absAxis(code int) (info absInfo, ok bool, err error) {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), evioCGAbs(code), uintptr(unsafe.Pointer(&info)))
	switch {
	case errno == unix.EINVAL:
		return absInfo{}, false, nil
	case errno != 0:
		return absInfo{}, false, fmt.Errorf("EVIOCGABS(%#x) on %s: %w", code, d.path, errno)
	}
	return info, true, nil
}

// keyDown reports whether key is currently held according to the kernel.
func (d *evdevDevice) keyDown(key int) (bool, error) {
	bits := make([]byte, keyMax/8+1)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), evioCGKey(len(bits)), uintptr(unsafe.Pointer(&bits[0])))
	if errno != 0 {
		return false, fmt.Errorf("EVIOCGKEY on %s: %w", d.path, errno)
	}
	return bits[key/8]&(1<<(key%8)) != 0, nil
}

// mtSlots returns the per-slot values of one ABS_MT_* axis. It returns nil
// without error when the device has no slots.
func (d *evdevDevice) mtSlots(code, n int) ([]int32, error) {
	// struct input_mt_request_layout { __u32 code; __s32 values[n]; }
	buf := make([]int32, n+1)
	buf[0] = int32(code)
	size := len(buf) * int(unsafe.Sizeof(buf[0]))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), evioCGMTSlots(size), uintptr(unsafe.Pointer(&buf[0])))
	if errno == unix.EINVAL {
		return nil, nil
	}
	if errno != 0 {
		return nil, fmt.Errorf("EVIOCGMTSLOTS(%#x) on %s: %w", code, d.path, errno)
	}
	return buf[1:], nil
}

// contactState queries the current touch state from the kernel.
func (d *evdevDevice) contactState() (contactSnapshot, error) {
	var snap contactSnapshot

	down, err := d.keyDown(BTN_TOUCH)
	if err != nil {
		return snap, err
	}
	snap.Button = down

	// ABS_X/ABS_Y are single-touch axes, so their kernel values are current.
	if info, ok, err := d.absAxis(ABS_X); err != nil {
		return snap, err
	} else if ok {
		snap.X = info.Value
	}
	if info, ok, err := d.absAxis(ABS_Y); err != nil {
		return snap, err
	} else if ok {
		snap.Y = info.Value
	}

	slotInfo, ok, err := d.absAxis(ABS_MT_SLOT)
	if err != nil || !ok {
		return snap, err
	}
	n := int(slotInfo.Maximum) + 1
	if n > maxSlots {
		n = maxSlots
	}
	if n < 1 {
		n = 1
	}
	ids, err := d.mtSlots(ABS_MT_TRACKING_ID, n)
	if err != nil || ids == nil {
		return snap, err
	}
	xs, err := d.mtSlots(ABS_MT_POSITION_X, n)
	if err != nil || xs == nil {
		return snap, err
	}
	ys, err := d.mtSlots(ABS_MT_POSITION_Y, n)
	if err != nil || ys == nil {
		return snap, err
	}
	snap.Slot = slotInfo.Value
	snap.Slots = make([]touchSlot, n)
	for i := range snap.Slots {
		snap.Slots[i] = touchSlot{active: ids[i] >= 0, x: xs[i], y: ys[i]}
	}
	return snap, nil
}

// grab takes exclusive access so spins do not also move the pointer.
func (d *evdevDevice) grab() error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), evioCGrab(), 1); errno != 0 {
		return fmt.Errorf("EVIOCGRAB on %s: %w", d.path, errno)
	}
	return nil
}

// keyboardDevice is the activation key source.
type keyboardDevice struct {
	*evdevDevice
}

func openKeyboard(path string) (*keyboardDevice, error) {
	d, err := openEvdev(path)
	if err != nil {
		return nil, err
	}
	return &keyboardDevice{d}, nil
}

func (k *keyboardDevice) Drain(fn func(inputEvent)) error {
	return k.drain(fn)
}

// touchDevice tracks the contact on a touch surface from its event stream.
// The kernel state is queried once at open and again after SYN_DROPPED.
type touchDevice struct {
	*evdevDevice
	contact contactTracker
	query   func() (contactSnapshot, error)
}

func newTouchDevice(d *evdevDevice) *touchDevice {
	return &touchDevice{evdevDevice: d, query: d.contactState}
}

func openTouch(path string, grab bool) (*touchDevice, error) {
	d, err := openEvdev(path)
	if err != nil {
		return nil, err
	}
	if grab {
		if err := d.grab(); err != nil {
			d.Close()
			return nil, err
		}
	}
	t := newTouchDevice(d)
	if err := t.resync(); err != nil {
		d.Close()
		return nil, err
	}
	// A finger resting since before start is not a new sample.
	t.contact.moved = false
	return t, nil
}

func (t *touchDevice) resync() error {
	snap, err := t.query()
	if err != nil {
		return err
	}
	t.contact.restore(snap)
	return nil
}

// Drain consumes pending events and reports whether a new position is available.
func (t *touchDevice) Drain() (bool, error) {
	if err := t.drain(t.contact.observe); err != nil {
		return false, err
	}
	if t.contact.needSync {
		if err := t.resync(); err != nil {
			return false, err
		}
	}
	return t.contact.take(), nil
}

// Position returns the primary contact; ok is false when no finger is down.
func (t *touchDevice) Position() (Point, bool, error) {
	p, ok := t.contact.position()
	return p, ok, nil
}

// openInputs opens both devices and the poller. The returned closer releases
// everything that was opened.
func openInputs(cfg DevicesConfig) (KeySource, TouchSource, Poller, func(), error) {
	kb, err := openKeyboard(cfg.Keyboard)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	touch, err := openTouch(cfg.Touchpad, cfg.Grab)
	if err != nil {
		kb.Close()
		return nil, nil, nil, nil, err
	}
	poller, err := newEpollPoller()
	if err != nil {
		touch.Close()
		kb.Close()
		return nil, nil, nil, nil, err
	}

	closeAll := func() {
		_ = poller.Close()
		_ = touch.Close()
		_ = kb.Close()
	}
	return kb, touch, poller, closeAll, nil
}
