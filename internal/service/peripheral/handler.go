package peripheral

import (
	"context"

	"github.com/go-ble/ble"

	"github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/slot"
)

// OriginBLE is the origin recorded for commands written over BLE.
const OriginBLE = "ble"

// CommandHandler applies deployment writes.
type CommandHandler interface {
	HandleWrite(ctx context.Context, origin string, payload []byte) (*deployment.State, error)
}

// connTracker records the central behind a request.
type connTracker interface {
	track(conn ble.Conn)
}

// valueReader serves a slot. An empty slot yields an empty value.
type valueReader struct {
	// value is the served slot.
	value *slot.Value
	// conns records the requesting central.
	conns connTracker
}

// ServeRead writes the slot value starting at the requested offset.
func (r *valueReader) ServeRead(req ble.Request, rsp ble.ResponseWriter) {
	r.conns.track(req.Conn())
	writeAt(rsp, r.value.Load(), req.Offset())
}

// faultReader serves the fault bitmask.
type faultReader struct {
	// faults is the served bitmask.
	faults *slot.Faults
	// conns records the requesting central.
	conns connTracker
}

// ServeRead writes the one-byte fault bitmask.
func (r *faultReader) ServeRead(req ble.Request, rsp ble.ResponseWriter) {
	r.conns.track(req.Conn())
	writeAt(rsp, r.faults.Bytes(), req.Offset())
}

// discardWriter accepts and drops writes to telemetry characteristics.
type discardWriter struct {
	// ctx carries the logger.
	ctx context.Context //nolint:containedctx // Handlers are invoked by the BLE stack without a context.
	// signal is the characteristic's signal.
	signal Signal
	// conns records the requesting central.
	conns connTracker
}

// ServeWrite acknowledges the write without storing it.
func (w *discardWriter) ServeWrite(req ble.Request, _ ble.ResponseWriter) {
	w.conns.track(req.Conn())
	logger.DebugKV(w.ctx, "Discarding telemetry write", "signal", w.signal, "payload_len", len(req.Data()))
}

// commandWriter forwards writes to the CommandHandler.
type commandWriter struct {
	// ctx carries the logger.
	ctx context.Context //nolint:containedctx // Handlers are invoked by the BLE stack without a context.
	// handler applies the command.
	handler CommandHandler
	// conns records the requesting central.
	conns connTracker
}

// ServeWrite applies the command and answers hardware failures with ErrUnlikely.
func (w *commandWriter) ServeWrite(req ble.Request, rsp ble.ResponseWriter) {
	conn := req.Conn()
	w.conns.track(conn)

	ctx := w.ctx
	if conn != nil && conn.RemoteAddr() != nil {
		ctx = logger.WithKV(ctx, "central", conn.RemoteAddr().String())
	}

	if _, err := w.handler.HandleWrite(ctx, OriginBLE, req.Data()); err != nil {
		rsp.SetStatus(ble.ErrUnlikely)
	}
}

// writeAt writes value[offset:] to rsp, or answers ErrInvalidOffset.
func writeAt(rsp ble.ResponseWriter, value []byte, offset int) {
	if offset > len(value) {
		rsp.SetStatus(ble.ErrInvalidOffset)

		return
	}

	_, _ = rsp.Write(value[offset:])
}
