// file: panel/factory.go
package panel

import "fmt"

// Drivers accepted by Open.
const (
	DriverModbusRTU = "modbus-rtu"
	DriverModbusTCP = "modbus-tcp"
	DriverSimulator = "sim"
)

// Open builds the controller for driver.
func Open(driver string, cfg ModbusConfig) (Controller, error) {
	switch driver {
	case DriverModbusRTU:
		cfg.Mode = ModeRTU
		return NewModbusPanel(cfg, nil), nil
	case DriverModbusTCP:
		cfg.Mode = ModeTCP
		return NewModbusPanel(cfg, nil), nil
	case DriverSimulator:
		return NewSimulator(cfg.Meters), nil
	}
	return nil, fmt.Errorf("unknown panel driver %q", driver)
}
