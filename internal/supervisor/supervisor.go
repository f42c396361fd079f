// Package supervisor owns the reader, processor, and command-receiver
// goroutines: it installs the interrupt handler, carries the shared stop
// flag, and performs orderly teardown, per spec.md §4/§5/§7.
package supervisor

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"metamac/internal/command"
	"metamac/internal/processor"
	"metamac/internal/reader"
)

// StopFlag is the process-wide, release/acquire stop flag described in
// spec.md §3: set once by the signal handler or a fatal-path detector,
// never cleared.
type StopFlag struct {
	stopped atomic.Bool
	reason  atomic.Value // string
}

// Stopped reports whether the flag has been set (acquire read).
func (f *StopFlag) Stopped() bool { return f.stopped.Load() }

// Stop sets the flag (release write). Safe to call more than once.
func (f *StopFlag) Stop() { f.stopped.Store(true) }

// SetFatal records reason and sets the flag, satisfying reader.StopFlag.
func (f *StopFlag) SetFatal(reason string) {
	f.reason.Store(reason)
	f.Stop()
}

// Reason returns the fatal reason last recorded, if any.
func (f *StopFlag) Reason() string {
	v := f.reason.Load()
	if v == nil {
		return ""
	}
	return v.(string)
}

// Supervisor runs the reader and processor loops to completion and tears
// down the optional command receiver on exit.
type Supervisor struct {
	Reader    *reader.Reader
	Processor *processor.Processor
	Receiver  *command.Receiver // nil if the command endpoint is disabled
	Stop      *StopFlag
}

// New creates a Supervisor over an already-wired reader/processor pair.
func New(rd *reader.Reader, pr *processor.Processor, recv *command.Receiver) *Supervisor {
	return &Supervisor{Reader: rd, Processor: pr, Receiver: recv, Stop: &StopFlag{}}
}

// Run installs the SIGINT/SIGTERM handler, starts the reader and
// processor, and blocks until both have returned. It returns the fatal
// reason recorded by either loop, or "" on a clean interrupt-driven
// shutdown.
func (s *Supervisor) Run(ctx context.Context) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("supervisor: interrupt received, shutting down")
		s.Stop.Stop()
		cancel()
	}()

	if s.Receiver != nil {
		go s.Receiver.Run()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Reader.Run(ctx, s.Stop)
	}()
	go func() {
		defer wg.Done()
		s.Processor.Run(ctx, s.Stop)
	}()
	wg.Wait()

	if s.Receiver != nil {
		if err := s.Receiver.Close(); err != nil {
			log.Printf("supervisor: close command receiver: %v", err)
		}
	}

	signal.Stop(sigCh)
	return s.Stop.Reason()
}
