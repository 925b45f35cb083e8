package scheduler

import (
	"context"
	"time"

	"github.com/kasuganosora/waifuarena/ledger"
	"github.com/kasuganosora/waifuarena/metrics"
	"go.uber.org/zap"
)

// VerifyTaskName is the ticker running the journal replay check.
const VerifyTaskName = "ledger_verify"

// Verifier replays the journal against persisted state.
type Verifier interface {
	Verify(ctx context.Context) (*ledger.Report, error)
}

// VerifyLedger returns a task that replays the journal and logs any mismatch.
// m may be nil.
func VerifyLedger(v Verifier, m *metrics.Metrics, logger *zap.Logger) TaskFn {
	return func(ctx context.Context) {
		start := time.Now()
		report, err := v.Verify(ctx)
		if err != nil {
			logger.Error("ledger verify failed", zap.Error(err))
			return
		}
		if !report.OK() {
			if m != nil {
				m.VerifyFailures.Inc()
			}
			logger.Error("ledger state diverges from journal",
				zap.Int("actions", report.Actions),
				zap.Strings("mismatches", report.Mismatches))
			return
		}
		logger.Info("ledger verified",
			zap.Int("actions", report.Actions),
			zap.Uint64("waifus", report.Waifus),
			zap.String("treasury", report.Treasury),
			zap.Duration("took", time.Since(start)))
	}
}
