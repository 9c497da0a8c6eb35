// Package serial drives the BCM2837 PL011-compatible UART as the kernel's
// only byte sink: every panic message and boot-progress line in this kernel
// goes out through Write. There is no input buffering, no framebuffer, and
// no terminal emulation here — just the minimal writechar/readchar pair the
// rest of the kernel needs before anything more capable could exist.
package serial

import (
	"github.com/rimekernel/ember/internal/reg"
	"github.com/rimekernel/ember/kernelerr"
	"github.com/rimekernel/ember/mailbox"
)

const (
	gpioBase  uintptr = 0x3F20_0000
	gppud     uintptr = gpioBase + 0x94
	gppudclk0 uintptr = gpioBase + 0x98
	gpfsel1   uintptr = 0x3F20_0004

	uartBase uintptr = 0x3F20_1000
	uartDR   uintptr = uartBase + 0x00
	uartFR   uintptr = uartBase + 0x18
	uartIBRD uintptr = uartBase + 0x24
	uartFBRD uintptr = uartBase + 0x28
	uartLCRH uintptr = uartBase + 0x2C
	uartCR   uintptr = uartBase + 0x30
	uartICR  uintptr = uartBase + 0x44
)

const (
	frTXFF uint32 = 1 << 5 // transmit FIFO full
	frRXFE uint32 = 1 << 4 // receive FIFO empty
)

func transmitFIFOFull() bool {
	return reg.MmioRead(uartFR)&frTXFF != 0
}

// Writechar blocks until there is room in the transmit FIFO, then sends one
// byte.
func Writechar(c byte) {
	for transmitFIFOFull() {
	}
	reg.MmioWrite(uartDR, uint32(c))
}

// Readchar returns the next received byte, or ok == false if none is
// waiting. A received NUL byte is consumed and also reported as
// ok == false. It never blocks.
func Readchar() (c byte, ok bool) {
	if reg.MmioRead(uartFR)&frRXFE != 0 {
		return 0, false
	}
	v := reg.MmioRead(uartDR) & 0xFF
	if v == 0 {
		return 0, false
	}
	return byte(v), true
}

// Write sends every byte of s, in order.
func Write(s string) {
	for i := 0; i < len(s); i++ {
		Writechar(s[i])
	}
}

// WriteString is Write with the (n, err) results of io.StringWriter's
// method; it always reports len(s) and a nil error.
func WriteString(s string) (int, error) {
	Write(s)
	return len(s), nil
}

func delay(cycles int) {
	for i := 0; i < cycles; i++ {
		reg.CompilerBarrier()
	}
}

// Init disables the UART, asks the VideoCore firmware for a fixed 4MHz UART
// clock (so the baud divisor below is correct regardless of the core
// clock's dynamic frequency scaling), configures GPIO14/15 as UART TXD/RXD,
// and re-enables the UART at 115200 8N1.
func Init() error {
	reg.MmioWrite(uartCR, 0)

	if !mailbox.New().SetClockRate(mailbox.ClockUART, 4_000_000, 0, nil).Submit() {
		return kernelerr.New(kernelerr.InitSerial, "failed to set UART clock rate")
	}

	ra := reg.MmioRead(gpfsel1)
	ra &^= (7 << 12) | (7 << 15) // gpio14, gpio15
	ra |= (4 << 12) | (4 << 15) // ALT0
	reg.MmioWrite(gpfsel1, ra)

	reg.MmioWrite(gppud, 0)
	delay(150)
	reg.MmioWrite(gppudclk0, (1<<14)|(1<<15))
	delay(150)
	reg.MmioWrite(gppudclk0, 0)

	reg.MmioWrite(uartICR, 0x7FF)

	// UART_CLOCK / (16 * baud), UART_CLOCK = 4MHz (set above), baud = 115200.
	reg.MmioWrite(uartIBRD, 2)
	reg.MmioWrite(uartFBRD, 0xB)

	reg.MmioWrite(uartLCRH, (1<<4)|(0b11<<5)) // 8 bits, FIFOs enabled
	reg.MmioWrite(uartCR, 1|(1<<8)|(1<<9))

	return nil
}
