package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safety-parachute/internal/api/wire"
	"github.com/oshokin/safety-parachute/internal/config"
	domain "github.com/oshokin/safety-parachute/internal/domain/deployment"
	"github.com/oshokin/safety-parachute/internal/domain/fault"
	"github.com/oshokin/safety-parachute/internal/domain/telemetry"
	"github.com/oshokin/safety-parachute/internal/logger"
	"github.com/oshokin/safety-parachute/internal/service/deployment"
)

// Kind classifies a journal record.
type Kind string

const (
	// KindBoot records a daemon start.
	KindBoot Kind = "boot"
	// KindCommand records a processed Arm or Disarm.
	KindCommand Kind = "command"
	// KindSensorFault records sensor fault bits being raised.
	KindSensorFault Kind = "sensor_fault"
	// KindSensorRecovered records every sensor fault bit clearing.
	KindSensorRecovered Kind = "sensor_recovered"
)

// DefaultBuffer is the default number of queued records.
const DefaultBuffer = 64

// maxLineSize bounds a single journal line when reading.
const maxLineSize = 64 * 1024

// Record is one journal entry.
type Record struct {
	// ID uniquely identifies the record.
	ID string
	// Time is when the record was created.
	Time time.Time
	// Kind classifies the record.
	Kind Kind
	// Command is the processed command for KindCommand.
	Command string
	// Origin is the link that issued the command.
	Origin string
	// State is the actuator state after the command.
	State *domain.State
	// Faults is the fault bitmask at the time of the record.
	Faults fault.Set
	// Detail carries the error text or the wake reason.
	Detail string
}

// Journal appends records to a JSON-lines file.
type Journal struct {
	// path is the journal file.
	path string
	// queue holds records waiting to be written.
	queue chan *Record
	// dropped counts records lost to a full queue.
	dropped atomic.Uint64
	// sensorFaults is the last journaled sensor fault set.
	sensorFaults atomic.Uint32
	// mu serializes writes to the file.
	mu sync.Mutex
}

// New returns a Journal writing to path with room for buffer queued records.
func New(path string, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Journal{
		path:  filepath.Clean(path),
		queue: make(chan *Record, buffer),
	}
}

// Append writes rec synchronously. Missing ID and Time are filled in.
func (j *Journal) Append(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	st, err := toStruct(rec)
	if err != nil {
		return err
	}

	line, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	if _, err = f.Write(append(line, '\n')); err != nil {
		_ = f.Close()

		return fmt.Errorf("write journal: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	return nil
}

// Enqueue queues rec for Run without blocking. It reports false when the queue is full.
func (j *Journal) Enqueue(rec *Record) bool {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	select {
	case j.queue <- rec:
		return true
	default:
		j.dropped.Add(1)

		return false
	}
}

// Dropped returns the number of records lost to a full queue.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Run writes queued records until ctx is cancelled, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "journal")

	for {
		select {
		case rec := <-j.queue:
			j.write(ctx, rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-j.queue:
					j.write(ctx, rec)
				default:
					return nil
				}
			}
		}
	}
}

// CommandProcessed implements deployment.Observer. Ignored commands are not journaled.
func (j *Journal) CommandProcessed(_ context.Context, event *deployment.Event) {
	if event.Command == domain.Ignore {
		return
	}

	rec := &Record{
		Kind:    KindCommand,
		Command: event.Command.String(),
		Origin:  event.Origin,
		State:   event.State,
	}

	if event.State != nil {
		rec.Faults = event.State.Faults
	}

	if event.Err != nil {
		rec.Detail = event.Err.Error()
	}

	j.Enqueue(rec)
}

// SampleRefreshed implements telemetry.Observer. Only fault transitions are journaled.
func (j *Journal) SampleRefreshed(_ context.Context, sample *telemetry.Sample, err error) {
	current := sample.Faults & fault.Sensors

	previous := fault.Set(j.sensorFaults.Swap(uint32(current))) //nolint:gosec // Only the low byte is ever set.
	if previous == current {
		return
	}

	rec := &Record{
		Kind:   KindSensorFault,
		Faults: current,
	}

	if current == 0 {
		rec.Kind = KindSensorRecovered
	}

	if err != nil {
		rec.Detail = err.Error()
	}

	j.Enqueue(rec)
}

// write appends rec and logs failures.
func (j *Journal) write(ctx context.Context, rec *Record) {
	if err := j.Append(ctx, rec); err != nil {
		logger.ErrorKV(ctx, "Failed to append journal record", "kind", rec.Kind, "error", err)
	}
}

// ReadAll returns every record of the journal at path in file order.
func ReadAll(path string) ([]*Record, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("open journal: %w", err)
	}

	defer f.Close() //nolint:errcheck // Read-only file.

	var (
		records []*Record
		scanner = bufio.NewScanner(f)
		lineNo  int
	)

	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	for scanner.Scan() {
		lineNo++

		if len(scanner.Bytes()) == 0 {
			continue
		}

		var st structpb.Struct
		if err := protojson.Unmarshal(scanner.Bytes(), &st); err != nil {
			return records, fmt.Errorf("decode line %d: %w", lineNo, err)
		}

		rec, err := fromStruct(&st)
		if err != nil {
			return records, fmt.Errorf("decode line %d: %w", lineNo, err)
		}

		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read journal: %w", err)
	}

	return records, nil
}

// toStruct encodes a record.
func toStruct(rec *Record) (*structpb.Struct, error) {
	values := map[string]any{
		"id":     rec.ID,
		"time":   rec.Time.UTC().Format(time.RFC3339Nano),
		"kind":   string(rec.Kind),
		"faults": float64(rec.Faults),
	}

	if rec.Command != "" {
		values["command"] = rec.Command
	}

	if rec.Origin != "" {
		values["origin"] = rec.Origin
	}

	if rec.Detail != "" {
		values["detail"] = rec.Detail
	}

	st, err := structpb.NewStruct(values)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	if rec.State != nil {
		state, err := wire.StateToStruct(rec.State)
		if err != nil {
			return nil, err
		}

		st.Fields["state"] = structpb.NewStructValue(state)
	}

	return st, nil
}

// fromStruct decodes a record encoded by toStruct.
func fromStruct(st *structpb.Struct) (*Record, error) {
	fields := st.GetFields()

	ts, err := time.Parse(time.RFC3339Nano, fields["time"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("parse time: %w", err)
	}

	rec := &Record{
		ID:      fields["id"].GetStringValue(),
		Time:    ts,
		Kind:    Kind(fields["kind"].GetStringValue()),
		Command: fields["command"].GetStringValue(),
		Origin:  fields["origin"].GetStringValue(),
		Faults:  fault.Set(fields["faults"].GetNumberValue()),
		Detail:  fields["detail"].GetStringValue(),
	}

	if state := fields["state"].GetStructValue(); state != nil {
		if rec.State, err = wire.StateFromStruct(state); err != nil {
			return nil, err
		}
	}

	return rec, nil
}
