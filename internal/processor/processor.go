// Package processor implements the consumer loop described in spec.md
// §4.5: drain a batch from the slot queue, feed each observation to the
// estimator and the CSV log, reconcile the running protocol with the
// current best once a second, and emit display/telemetry.
package processor

import (
	"context"
	"log"
	"time"

	"metamac/internal/command"
	"metamac/internal/estimator"
	"metamac/internal/health"
	"metamac/internal/observation"
	"metamac/internal/protocol"
	"metamac/internal/queueing"
	"metamac/internal/slotcache"
	"metamac/internal/telemetry"
)

// BatchSize is the default pop_many size (spec.md §4.5).
const BatchSize = 16

// DisplaySink receives one update per display tick (≈1/s). Implemented by
// internal/display's console and status-page writers; a processor with no
// sink configured simply skips the call.
type DisplaySink interface {
	Update(s *protocol.Suite, pcoll float64, h health.Snapshot)
}

// Config parameterises one processor loop.
type Config struct {
	Readonly  bool
	BatchSize int
}

// Processor owns the protocol suite and drives the estimator, the
// bytecode-slot controller, the optional CSV log, and the optional
// telemetry emitter. It is the suite's sole mutator (spec.md §3).
type Processor struct {
	suite     *protocol.Suite
	queue     *queueing.Queue
	slots     *slotcache.Controller
	mailbox   *command.Mailbox
	csv       *telemetry.CSVLogger
	telem     *telemetry.Emitter
	display   DisplaySink
	cfg       Config

	override *int
	readNum  uint64

	attempts  uint64
	successes uint64
	pcoll     float64

	lastDisplay  time.Time
	lastEvaluate time.Time
}

// New builds a Processor. csv, telem, and display may be nil to disable
// the corresponding output.
func New(suite *protocol.Suite, q *queueing.Queue, slots *slotcache.Controller, mailbox *command.Mailbox, csv *telemetry.CSVLogger, telem *telemetry.Emitter, display DisplaySink, cfg Config) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = BatchSize
	}
	return &Processor{
		suite:   suite,
		queue:   q,
		slots:   slots,
		mailbox: mailbox,
		csv:     csv,
		telem:   telem,
		display: display,
		cfg:     cfg,
	}
}

// StopFlag mirrors reader.StopFlag so this package doesn't need to import
// the supervisor package that wires both loops together.
type StopFlag interface {
	Stopped() bool
}

// Run drains the queue until ctx is cancelled or stop reports shutdown,
// applying pending commands, feeding the estimator, and running the
// once-per-second evaluate/display ticks. It always flushes the CSV log
// before returning (spec.md §5's shutdown rule).
func (p *Processor) Run(ctx context.Context, stop StopFlag) {
	p.lastDisplay = time.Now()
	p.lastEvaluate = p.lastDisplay
	for {
		if ctx.Err() != nil || stop.Stopped() {
			for p.queue.Len() > 0 {
				p.consume(p.queue.PopMany(p.cfg.BatchSize))
			}
			p.flush()
			return
		}

		p.applyCommand()

		batch := p.queue.PopMany(p.cfg.BatchSize)
		if len(batch) == 0 {
			continue
		}
		p.consume(batch)

		if !p.cfg.Readonly && p.override == nil && time.Since(p.lastEvaluate) >= time.Second {
			p.lastEvaluate = time.Now()
			if err := p.evaluate(); err != nil {
				log.Printf("processor: evaluate: %v", err)
			}
		}

		if time.Since(p.lastDisplay) >= time.Second {
			p.tick()
		}
	}
}

func (p *Processor) consume(batch []observation.Record) {
	for _, rec := range batch {
		p.readNum++
		rec.ReadNum = p.readNum

		if !rec.Filler {
			if rec.Transmitted {
				p.attempts++
			}
			if rec.TransmitSuccess {
				p.successes++
			}
			estimator.Update(p.suite, rec)
		}

		if p.csv != nil {
			if err := p.csv.Write(rec, p.pcoll, p.suite); err != nil {
				log.Printf("processor: csv write: %v", err)
			}
		}
	}
}

// applyCommand drains the command mailbox, applying at most one command
// per iteration (spec.md §5: the processor drains it at the top of each
// iteration).
func (p *Processor) applyCommand() {
	cmd, ok := p.mailbox.Drain()
	if !ok {
		return
	}
	switch cmd.Kind {
	case command.Clear:
		p.override = nil
	case command.SetOverride:
		idx := cmd.ProtocolIndex
		p.override = &idx
		if err := p.slots.Load(p.suite, idx); err != nil {
			log.Printf("processor: load override protocol: %v", err)
		}
	}
}

// evaluate implements spec.md §4.5 step 4.
func (p *Processor) evaluate() error {
	if p.suite.Cycle {
		if time.Since(p.suite.LastUpdateTime) >= time.Second {
			current := p.suite.ActiveProtocol
			next := (current + 1) % len(p.suite.Protocols)
			if err := p.slots.Load(p.suite, next); err != nil {
				return err
			}
			log.Printf("cycling: protocol %d -> %d", current, next)
			return nil
		}
		return nil
	}
	return p.slots.Load(p.suite, p.suite.ArgmaxWeight())
}

// tick implements spec.md §4.5 step 5: the once-per-second display and
// telemetry emission, plus the pcoll refresh that feeds the next second
// of CSV rows.
func (p *Processor) tick() {
	p.pcoll = collisionRatio(p.attempts, p.successes)
	p.attempts, p.successes = 0, 0
	p.lastDisplay = time.Now()

	if p.display != nil {
		h, err := health.Sample(context.Background())
		if err != nil {
			log.Printf("processor: health sample: %v", err)
		}
		p.display.Update(p.suite, p.pcoll, h)
	}
	if p.telem != nil {
		if err := p.telem.Emit(p.suite); err != nil {
			log.Printf("processor: telemetry emit: %v", err)
		}
	}
}

func collisionRatio(attempts, successes uint64) float64 {
	if attempts == 0 {
		return 0
	}
	return 1 - float64(successes)/float64(attempts)
}

func (p *Processor) flush() {
	if p.csv == nil {
		return
	}
	if err := p.csv.Flush(); err != nil {
		log.Printf("processor: final csv flush: %v", err)
	}
}
