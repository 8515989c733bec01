package main

import (
	"fmt"
	"log"
	"os"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sweeney/roboat-helm/internal/ahrs"
	"github.com/sweeney/roboat-helm/internal/captain"
	"github.com/sweeney/roboat-helm/internal/config"
	"github.com/sweeney/roboat-helm/internal/gpio"
	"github.com/sweeney/roboat-helm/internal/gps"
	"github.com/sweeney/roboat-helm/internal/imu"
	"github.com/sweeney/roboat-helm/internal/logbook"
	"github.com/sweeney/roboat-helm/internal/power"
	"github.com/sweeney/roboat-helm/internal/serialport"
)

// closers releases hardware in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

// openHardware builds every controller on real devices. On error everything
// opened so far is released.
func openHardware(cfg *config.Config) (h *helm, release func(), err error) {
	var cl closers
	defer func() {
		if err != nil {
			cl.closeAll()
		}
	}()

	chip, err := gpio.OpenChip(cfg.GPIOChip)
	if err != nil {
		return nil, nil, fmt.Errorf("init gpio: %w", err)
	}
	cl.add(chip.Close)

	// IMU held in reset until the AHRS controller releases it.
	reset, err := chip.Output(cfg.AHRS.ResetPin, false)
	if err != nil {
		return nil, nil, fmt.Errorf("init ahrs reset: %w", err)
	}
	// Wake is active low.
	wake, err := chip.Output(cfg.Captain.WakePin, true)
	if err != nil {
		return nil, nil, fmt.Errorf("init captain wake: %w", err)
	}
	pg, err := chip.Input(cfg.Power.PowerGoodPin)
	if err != nil {
		return nil, nil, fmt.Errorf("init charger pg: %w", err)
	}
	stat1, err := chip.Input(cfg.Power.Stat1Pin)
	if err != nil {
		return nil, nil, fmt.Errorf("init charger stat1: %w", err)
	}
	stat2, err := chip.Input(cfg.Power.Stat2Pin)
	if err != nil {
		return nil, nil, fmt.Errorf("init charger stat2: %w", err)
	}

	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("init periph host: %w", err)
	}
	ahrsBus, err := openBus(cfg.AHRS.I2CBus, &cl)
	if err != nil {
		return nil, nil, fmt.Errorf("init ahrs i2c: %w", err)
	}
	powerBus := ahrsBus
	if cfg.Power.I2CBus != cfg.AHRS.I2CBus {
		if powerBus, err = openBus(cfg.Power.I2CBus, &cl); err != nil {
			return nil, nil, fmt.Errorf("init power i2c: %w", err)
		}
	}

	eeprom, err := logbook.OpenFileEEPROM(cfg.Log.EEPROMPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init eeprom: %w", err)
	}
	cl.add(eeprom.Close)

	book, err := logbook.New(cfg.Log.Config, logbook.NewDirStorage(cfg.Log.Dir), eeprom)
	if err != nil {
		return nil, nil, fmt.Errorf("init log: %w", err)
	}
	cl.add(book.Close)
	if cfg.Log.Echo {
		book.Echo = os.Stdout
	}

	gpsPort := serialport.NewRealPort(cfg.GPS.Device)
	cl.add(gpsPort.Close)
	captainPort := serialport.NewRealPort(cfg.Captain.Device)
	cl.add(captainPort.Close)

	attitude := ahrs.New(cfg.AHRS.Config, reset,
		imu.NewGyro(ahrsBus, imu.GyroAddr),
		imu.NewAccelMag(ahrsBus, imu.AccelMagAddr),
		ahrs.NewMadgwick())
	attitude.SetActive(cfg.AHRS.Active)

	battery := power.New(cfg.Power.Config,
		power.Lines{PowerGood: pg, Stat1: stat1, Stat2: stat2},
		power.NewINA219(powerBus, cfg.Power.Address))

	h = &helm{
		ahrs:    attitude,
		gps:     gps.New(cfg.GPS.Config, gpsPort),
		power:   battery,
		log:     book,
		captain: captain.New(cfg.Captain.Config, captainPort, wake),
	}
	log.Printf("hardware: gpio=%s log=%s epoch=%d gps=%s captain=%s",
		cfg.GPIOChip, cfg.Log.Dir, book.Epoch(), cfg.GPS.Device, cfg.Captain.Device)
	return h, cl.closeAll, nil
}

// openBus opens an I2C bus by name; an empty name opens the first one found.
func openBus(name string, cl *closers) (i2c.Bus, error) {
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, err
	}
	cl.add(bus.Close)
	return bus, nil
}
