//go:build !unix

package lifecycle

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
)

// OS is an Environment backed by process signals. Only interrupt is
// available on this platform, so visibility never changes.
type OS struct {
	*Manual

	logger *slog.Logger
	sigCh  chan os.Signal
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewOS starts listening for process signals. Call Close to stop.
func NewOS(logger *slog.Logger) *OS {
	if logger == nil {
		logger = slog.Default()
	}

	o := &OS{
		Manual: NewManual(),
		logger: logger,
		sigCh:  make(chan os.Signal, 1),
		stop:   make(chan struct{}),
	}
	signal.Notify(o.sigCh, os.Interrupt)

	o.wg.Add(1)
	go o.loop()
	return o
}

// Close stops signal delivery.
func (o *OS) Close() {
	o.once.Do(func() {
		signal.Stop(o.sigCh)
		close(o.stop)
		o.wg.Wait()
	})
}

func (o *OS) loop() {
	defer o.wg.Done()

	select {
	case <-o.stop:
	case sig := <-o.sigCh:
		o.logger.Info("received signal", "signal", sig)
		o.Shutdown()
	}
}
