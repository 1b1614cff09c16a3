// file: panel/modbus.go
package panel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"go-panel-relay/logger"
	"go-panel-relay/models"
)

// Transport modes for ModbusConfig.Mode.
const (
	ModeRTU = "rtu"
	ModeTCP = "tcp"
)

// ModbusConfig describes how to reach the panel I/O board.
type ModbusConfig struct {
	Mode         string        // ModeRTU or ModeTCP
	Device       string        // serial device for RTU, e.g. /dev/ttyUSB0
	BaudRate     int           // RTU only
	Address      string        // host:port for TCP
	SlaveID      byte          // Modbus unit id of the board
	Timeout      time.Duration // per request
	Meters       int           // multimeters managed by the board
	PollInterval time.Duration // pause between poll steps
}

// RegisterClient is the subset of modbus.Client the panel uses.
type RegisterClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// Dialer opens a register client and returns the closer that releases it.
type Dialer func(cfg ModbusConfig) (RegisterClient, io.Closer, error)

// DialModbus connects a goburrow/modbus client over RTU or TCP.
func DialModbus(cfg ModbusConfig) (RegisterClient, io.Closer, error) {
	switch cfg.Mode {
	case ModeRTU, "":
		handler := modbus.NewRTUClientHandler(cfg.Device)
		handler.BaudRate = cfg.BaudRate
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.SlaveId = cfg.SlaveID
		handler.Timeout = cfg.Timeout
		if err := handler.Connect(); err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.Device, err)
		}
		return modbus.NewClient(handler), handler, nil
	case ModeTCP:
		handler := modbus.NewTCPClientHandler(cfg.Address)
		handler.SlaveId = cfg.SlaveID
		handler.Timeout = cfg.Timeout
		if err := handler.Connect(); err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", cfg.Address, err)
		}
		return modbus.NewClient(handler), handler, nil
	}
	return nil, nil, fmt.Errorf("unknown modbus mode %q", cfg.Mode)
}

// controlBlock is the state shared by the API calls and the poll loop.
type controlBlock struct {
	getInfo       bool
	relays        uint16
	relaysApplied uint16
	douts         uint16
	doutsApplied  uint16
	model         string
	firmware      string
	comStatus     int
	meters        []Meter
}

func newControlBlock(meters int) controlBlock {
	return controlBlock{getInfo: true, meters: make([]Meter, meters)}
}

// ModbusPanel drives the electrical panel board over Modbus.
type ModbusPanel struct {
	cfg  ModbusConfig
	dial Dialer

	mu      sync.Mutex
	client  RegisterClient
	closer  io.Closer
	control controlBlock
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewModbusPanel creates a panel that connects with dial (DialModbus when nil).
func NewModbusPanel(cfg ModbusConfig, dial Dialer) *ModbusPanel {
	if dial == nil {
		dial = DialModbus
	}
	if cfg.Meters <= 0 {
		cfg.Meters = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 300 * time.Millisecond
	}
	return &ModbusPanel{cfg: cfg, dial: dial, control: newControlBlock(cfg.Meters)}
}

// Setup opens the bus, replacing any previous connection.
func (p *ModbusPanel) Setup() error {
	p.stopLoop()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()

	client, closer, err := p.dial(p.cfg)
	if err != nil {
		logger.Error.Printf("[ModbusPanel.Setup] Could not open bus (mode=%s device=%s address=%s): %v",
			p.cfg.Mode, p.cfg.Device, p.cfg.Address, err)
		return opError("setup", err)
	}
	p.client, p.closer = client, closer
	logger.Info.Printf("[ModbusPanel.Setup] Bus open (mode=%s slave=%d)", p.cfg.Mode, p.cfg.SlaveID)
	return nil
}

// Run resets the control block and starts the poll loop.
func (p *ModbusPanel) Run() error {
	p.stopLoop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return opError("run", ErrNotConfigured)
	}
	p.control = newControlBlock(p.cfg.Meters)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.pollLoop(ctx, p.client, p.done)
	logger.Info.Printf("[ModbusPanel.Run] Poll loop started (interval=%v, meters=%d)", p.cfg.PollInterval, p.cfg.Meters)
	return nil
}

// Update requests a new relay word; the poll loop writes it to the board.
func (p *ModbusPanel) Update(word models.ControlWord) error {
	if word > MaxWord {
		return opError("update", ErrInvalidWord)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.control.relays = uint16(word)
	logger.Debug.Printf("[ModbusPanel.Update] relays requested=0x%x", word)
	return nil
}

// Exit drives the relays off, stops polling and closes the bus.
func (p *ModbusPanel) Exit() error {
	p.stopLoop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if _, err := p.client.WriteSingleRegister(regRelays, 0); err != nil {
			logger.Warn.Printf("[ModbusPanel.Exit] Could not clear relays: %v", err)
		}
	}
	p.control = newControlBlock(p.cfg.Meters)
	err := p.closeLocked()
	logger.Info.Println("[ModbusPanel.Exit] Panel closed")
	return opError("exit", err)
}

// Values renders the latest multimeter readings.
func (p *ModbusPanel) Values() (models.Snapshot, error) {
	p.mu.Lock()
	r := readings(p.control.meters)
	p.mu.Unlock()
	snap, err := r.Snapshot()
	return snap, opError("values", err)
}

// Info reports the board identity and bus status read by the poll loop.
func (p *ModbusPanel) Info() DeviceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return DeviceInfo{Model: p.control.model, Firmware: p.control.firmware, ComStatus: p.control.comStatus}
}

func (p *ModbusPanel) closeLocked() error {
	p.client = nil
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	return err
}

func (p *ModbusPanel) stopLoop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// -------------------- poll loop --------------------

func (p *ModbusPanel) pollLoop(ctx context.Context, client RegisterClient, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.pollStep(client)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollStep performs one bus transaction, chosen by priority: device info,
// pending relay write, pending digital output write, multimeter read.
func (p *ModbusPanel) pollStep(client RegisterClient) {
	p.mu.Lock()
	c := p.control
	p.mu.Unlock()

	var err error
	switch {
	case c.getInfo:
		err = p.readInfo(client)
	case c.relays != c.relaysApplied:
		err = p.writeRegister(client, regRelays, c.relays, func(v uint16) { p.control.relaysApplied = v })
	case c.douts != c.doutsApplied:
		err = p.writeRegister(client, regDouts, c.douts, func(v uint16) { p.control.doutsApplied = v })
	default:
		err = p.readMeters(client, len(c.meters))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.control.comStatus = -1
		logger.Warn.Printf("[ModbusPanel.pollStep] Bus error: %v", err)
		return
	}
	p.control.comStatus = comStatusOK
}

func (p *ModbusPanel) readInfo(client RegisterClient) error {
	b, err := client.ReadHoldingRegisters(regInfo, regInfoCount)
	if err != nil {
		return fmt.Errorf("read info: %w", err)
	}
	regs, err := registers(b)
	if err != nil {
		return err
	}
	model, firmware, err := decodeInfo(regs)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.control.model, p.control.firmware, p.control.getInfo = model, firmware, false
	p.mu.Unlock()
	logger.Info.Printf("[ModbusPanel.readInfo] Board model=%q firmware=%q", model, firmware)
	return nil
}

func (p *ModbusPanel) writeRegister(client RegisterClient, addr, value uint16, applied func(uint16)) error {
	if _, err := client.WriteSingleRegister(addr, value); err != nil {
		return fmt.Errorf("write 0x%x: %w", addr, err)
	}
	p.mu.Lock()
	applied(value)
	p.mu.Unlock()
	logger.Debug.Printf("[ModbusPanel.writeRegister] 0x%x set to 0x%x", addr, value)
	return nil
}

func (p *ModbusPanel) readMeters(client RegisterClient, count int) error {
	if count == 0 {
		return nil
	}
	b, err := client.ReadHoldingRegisters(regMeters, uint16(count)*regsPerMeter)
	if err != nil {
		return fmt.Errorf("read meters: %w", err)
	}
	regs, err := registers(b)
	if err != nil {
		return err
	}
	meters, err := decodeMeters(regs, count)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.control.meters = meters
	p.mu.Unlock()
	return nil
}
