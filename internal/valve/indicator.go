package valve

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Indicator is a single status LED. A nil *Indicator or one built over a nil
// pin is valid and does nothing, so boards without LEDs need no special case.
type Indicator struct {
	pin gpio.PinOut

	mu sync.Mutex
	on bool
}

// NewIndicator returns an LED driver over pin.
func NewIndicator(pin gpio.PinOut) *Indicator {
	return &Indicator{pin: pin}
}

// On lights the LED.
func (i *Indicator) On() error { return i.set(true) }

// Off turns the LED off.
func (i *Indicator) Off() error { return i.set(false) }

// IsOn reports the last level written.
func (i *Indicator) IsOn() bool {
	if i == nil {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.on
}

func (i *Indicator) set(on bool) error {
	if i == nil || i.pin == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.pin.Out(gpio.Level(on)); err != nil {
		return err
	}
	i.on = on
	return nil
}
