// Package cli implements the samplecore command-line commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"samplecore/internal/core"
)

// openService wires a service against the environment-selected store with
// a text logger on stderr.
func openService(opts ...core.Option) (*core.Service, func(), error) {
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := core.NewService(store, append([]core.Option{
		core.WithLogger(logger),
		core.WithMetrics(core.NewExpvarMetricsRecorder("")),
	}, opts...)...)
	return svc, func() { _ = store.Close() }, nil
}
