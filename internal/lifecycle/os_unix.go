//go:build unix

package lifecycle

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// OS is an Environment backed by process signals.
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
		sigCh:  make(chan os.Signal, 4),
		stop:   make(chan struct{}),
	}
	signal.Notify(o.sigCh, unix.SIGUSR1, unix.SIGUSR2, unix.SIGINT, unix.SIGTERM)

	o.wg.Add(1)
	go o.loop()
	return o
}

// Close stops signal delivery. Pending notifications are discarded.
func (o *OS) Close() {
	o.once.Do(func() {
		signal.Stop(o.sigCh)
		close(o.stop)
		o.wg.Wait()
	})
}

func (o *OS) loop() {
	defer o.wg.Done()

	for {
		select {
		case <-o.stop:
			return
		case sig := <-o.sigCh:
			o.logger.Info("received signal", "signal", sig)
			switch sig {
			case unix.SIGUSR1:
				o.SetVisible(false)
			case unix.SIGUSR2:
				o.SetVisible(true)
			case unix.SIGINT, unix.SIGTERM:
				o.Shutdown()
			}
		}
	}
}
