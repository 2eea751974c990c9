package worker

import "context"

// Processor is a task the monitor guard runs on every tick.
type Processor interface {
	Process(ctx context.Context, monitor string) (ScanResult, error)
}
