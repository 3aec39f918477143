package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_ABS = 0x03

	SYN_REPORT  = 0
	SYN_DROPPED = 3

	KEY_SPACE = 57

	BTN_TOUCH = 0x14a

	ABS_X              = 0x00
	ABS_Y              = 0x01
	ABS_MT_SLOT        = 0x2f
	ABS_MT_POSITION_X  = 0x35
	ABS_MT_POSITION_Y  = 0x36
	ABS_MT_TRACKING_ID = 0x39
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
)

// Defaults
const (
	defaultKeyboardDevice = "/dev/input/event0"
	defaultTouchDevice    = "/dev/input/event9"

	defaultCenterX = 600
	defaultCenterY = 300
	defaultRadius  = 300

	defaultCWSpinsRequired  = 2
	defaultCCWSpinsRequired = 2

	defaultAfterButtonpressMS = 4000  // attention window after the activation key
	defaultAfterSpinMS        = 4000  // attention window after each spin reaction
	defaultAfterSuccessMS     = 60000 // attention window after a completed clockwise sequence
	defaultGestureTimeoutMS   = 1000  // gesture dropped without a qualifying sample for this long

	defaultKeycode      = KEY_SPACE
	defaultMaxJump      = 50
	defaultPollInterval = 50 // ms; bounds deadline checks while Armed

	defaultIPCSocket = "/tmp/spinmon.sock"
)
