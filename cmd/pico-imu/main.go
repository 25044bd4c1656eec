//go:build rp2040 || rp2350

// pico-imu runs the IMU node on a Raspberry Pi Pico: HAL with the BNO055 on
// i2c0, heartbeat, and a UART console printing every vector.
package main

import (
	"context"
	"machine"
	"runtime"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"imunode-go/bus"
	"imunode-go/services/hal"
	"imunode-go/services/heartbeat"
	"imunode-go/types"
	"imunode-go/x/conv"
)

var console = uartx.UART0

// line is reused for every console write; printing happens on one goroutine.
var line = make([]byte, 0, 96)

func writeVector(kind string, v types.VectorValue) {
	line = append(line[:0], kind...)
	for i, c := range [3]int16{v.X, v.Y, v.Z} {
		line = append(line, ' ', "xyz"[i], '=')
		line = conv.AppendFixed(line, int64(c), int64(v.LSB))
	}
	line = append(line, ' ')
	line = append(line, v.Unit...)
	line = append(line, '\r', '\n')
	_, _ = console.Write(line)
}

func writeStatus(kind string, st types.CapabilityStatus) {
	line = append(line[:0], kind...)
	line = append(line, " link="...)
	line = append(line, string(st.Link)...)
	if st.Error != "" {
		line = append(line, " err="...)
		line = append(line, st.Error...)
	}
	line = append(line, '\r', '\n')
	_, _ = console.Write(line)
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	_ = console.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	println("[main] boot")

	ctx := context.Background()
	b := bus.NewBus(8)
	halConn := b.NewConnection("hal")
	ui := b.NewConnection("ui")

	buses, err := hal.OpenBuses(nil)
	if err != nil {
		println("[main] i2c:", err.Error())
		return
	}

	values := ui.Subscribe(bus.T("hal", "capability", "+", 0, "value"))
	status := ui.Subscribe(bus.T("hal", "capability", "+", 0, "status"))

	go hal.Run(ctx, halConn, buses, hal.Options{})
	hb := &heartbeat.Service{Interval: 5 * time.Second}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	ui.Publish(ui.NewMessage(bus.T("config", "hal"), hal.FirmwareConfig(), true))
	println("[main] config published; bring-up takes about a second")

	mem := time.NewTicker(30 * time.Second)
	for {
		select {
		case m := <-values.Channel():
			kind, _ := m.Topic.At(2).(string)
			if v, ok := m.Payload.(types.VectorValue); ok {
				writeVector(kind, v)
			}
		case m := <-status.Channel():
			kind, _ := m.Topic.At(2).(string)
			if st, ok := m.Payload.(types.CapabilityStatus); ok {
				writeStatus(kind, st)
			}
		case <-mem.C:
			printMem()
		}
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
