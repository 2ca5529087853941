package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/orchestrator"
	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

// startSystemd reports readiness and orchestrator state to the service
// manager. Outside systemd (no NOTIFY_SOCKET) every call is a no-op.
func (a *App) startSystemd() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
		return
	}
	if !sent {
		return
	}
	a.log.Debug("sd_notify ready sent")

	events, unsub := a.bus.Subscribe(16)
	a.sup.Go0("systemd.status", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if sc, ok := e.Data.(orchestrator.StateChange); ok && e.Type == orchestrator.EventState {
					_, _ = daemon.SdNotify(false, fmt.Sprintf("STATUS=%s", statusLine(sc.To, a.orch.Status())))
				}
			}
		}
	})

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) notifySystemdStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

func statusLine(s orchestrator.State, st orchestrator.Status) string {
	held := "none"
	if st.Held.IsValid() {
		held = st.Held.String()
	}
	return fmt.Sprintf("%s, held %s, %d requests", s, held, st.Cycle.Requests)
}
