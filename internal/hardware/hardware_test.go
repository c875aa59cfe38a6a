package hardware

import (
	"errors"
	"strings"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/nerrad567/gray-logic-valve/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valve/internal/valve"
)

func testHardwareConfig() config.HardwareConfig {
	return config.HardwareConfig{
		Motor: config.MotorConfig{EnablePin: "EN", IN1Pin: "IN1", IN2Pin: "IN2", Speed: 200, PWMFrequency: 1000},
		Limits: config.LimitsConfig{
			Open:  config.LimitPairConfig{PinA: "OA", PinB: "OB"},
			Close: config.LimitPairConfig{PinA: "CA", PinB: "CB"},
		},
		LEDs: config.LEDConfig{RedPin: "RED"},
	}
}

func mapLookup(pins map[string]*gpiotest.Pin) Lookup {
	return func(name string) gpio.PinIO {
		if p, ok := pins[name]; ok {
			return p
		}
		return nil
	}
}

func testPins() map[string]*gpiotest.Pin {
	pins := map[string]*gpiotest.Pin{}
	for _, n := range []string{"EN", "IN1", "IN2", "OA", "OB", "CA", "CB", "RED"} {
		pins[n] = &gpiotest.Pin{N: n}
	}
	return pins
}

func TestBind(t *testing.T) {
	pins := testPins()
	pins["CA"].L = gpio.High
	pins["CB"].L = gpio.Low

	b, err := Bind(testHardwareConfig(), mapLookup(pins))
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if b.Sim != nil {
		t.Error("Sim set for real pins")
	}

	if got := b.CloseLimit.Read(); got != valve.Asserted {
		t.Errorf("close limit = %v, want asserted", got)
	}
	if err := b.Motor.RunClockwise(255); err != nil {
		t.Fatal(err)
	}
	if pins["IN1"].L != gpio.High || pins["EN"].F != 1000*physic.Hertz {
		t.Errorf("motor not bound to configured pins: IN1=%v F=%v", pins["IN1"].L, pins["EN"].F)
	}

	// Green is unconfigured and must be a harmless no-op.
	if err := b.Green.On(); err != nil {
		t.Errorf("Green.On() error = %v", err)
	}
	if err := b.Red.On(); err != nil || pins["RED"].L != gpio.High {
		t.Errorf("Red.On() error = %v level %v", err, pins["RED"].L)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if pins["EN"].L != gpio.Low || pins["RED"].L != gpio.Low {
		t.Error("Close() left outputs energised")
	}
}

func TestBind_MissingPins(t *testing.T) {
	pins := testPins()
	delete(pins, "OB")
	delete(pins, "IN2")

	_, err := Bind(testHardwareConfig(), mapLookup(pins))
	if !errors.Is(err, ErrPinNotFound) {
		t.Fatalf("Bind() error = %v, want ErrPinNotFound", err)
	}
	for _, name := range []string{`"OB"`, `"IN2"`} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name pin %s", err, name)
		}
	}
}

func TestOpen_Simulated(t *testing.T) {
	b, err := Open(config.HardwareConfig{Simulated: true}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if b.Sim == nil || b.Motor == nil || b.OpenLimit == nil {
		t.Fatalf("simulated board incomplete: %+v", b)
	}
	if got := b.CloseLimit.Read(); got != valve.Asserted {
		t.Errorf("simulated valve starts at %v, want closed limit asserted", got)
	}
}
