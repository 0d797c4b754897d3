package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/config"
	"github.com/meshmonitor/meshmonitor/internal/meshproto"
	"github.com/meshmonitor/meshmonitor/internal/session"
	"github.com/meshmonitor/meshmonitor/internal/store"
)

// BuildDefaultJobs constructs the five standing periodic jobs, wired
// against db and sender per the given config. localNode is
// read at job run time, not build time, since the local node number is only
// known once the session's config dump delivers MyInfo.
func BuildDefaultJobs(cfg config.SchedulerConfig, ann config.AutomationConfig, db *store.DB, sender Sender, localNode func() uint32, log *zap.Logger) []*Job {
	jobs := []*Job{
		tracerouteRotationJob(cfg.TracerouteInterval, db, sender, log),
		nodeRefreshJob(cfg.NodeRefreshEvery, cfg.NodeRefreshWarmup, db, sender, localNode, log),
		retentionSweepJob(db, log),
		versionCheckJob(cfg.VersionCheckEvery, db, log),
	}
	announce := announceJob(cfg.AnnounceInterval, ann, sender, log)
	if cfg.AnnounceOnStart {
		announce.NextRun = time.Now()
	}
	jobs = append(jobs, announce)
	return jobs
}

// tracerouteRotationJob picks the node with the oldest traceroute among
// those heard within OldestHeardWindow and probes it. A per-destination
// cooldown of one interval keeps a slow or dead target from being probed
// again while its previous request may still be in flight.
func tracerouteRotationJob(interval time.Duration, db *store.DB, sender Sender, log *zap.Logger) *Job {
	lastProbe := map[uint32]time.Time{}
	return &Job{
		Name:     "traceroute-rotation",
		Interval: interval,
		Enabled:  true,
		Fn: func(ctx context.Context) error {
			since := time.Now().Add(-OldestHeardWindow).Unix()
			target, ok, err := db.OldestTracerouteTarget(ctx, since)
			if err != nil {
				return fmt.Errorf("scheduler: traceroute rotation: %w", err)
			}
			if !ok {
				return nil
			}
			if t, probed := lastProbe[target]; probed && time.Since(t) < interval {
				return nil
			}
			lastProbe[target] = time.Now()
			packetID := session.NewOutboundPacketID()
			msg := meshproto.TracerouteRequest(packetID, target)
			raw, err := meshproto.New().EncodeToRadio(msg)
			if err != nil {
				return fmt.Errorf("scheduler: encode traceroute request: %w", err)
			}
			if err := sender.Send(ctx, packetID, raw); err != nil {
				log.Warn("scheduler: traceroute request send failed", zap.Uint32("target", target), zap.Error(err))
			}
			return nil
		},
	}
}

// announceJob sends the configured announce text on the configured channel.
func announceJob(interval time.Duration, ann config.AutomationConfig, sender Sender, log *zap.Logger) *Job {
	return &Job{
		Name:     "auto-announce",
		Interval: interval,
		Enabled:  ann.AnnounceText != "",
		Fn: func(ctx context.Context) error {
			packetID := session.NewOutboundPacketID()
			msg := meshproto.TextMessage(packetID, 0xFFFFFFFF, uint32(ann.AnnounceChan), ann.AnnounceText, 0, 0, false)
			raw, err := meshproto.New().EncodeToRadio(msg)
			if err != nil {
				return fmt.Errorf("scheduler: encode announce: %w", err)
			}
			if err := sender.Send(ctx, packetID, raw); err != nil {
				log.Warn("scheduler: announce send failed", zap.Error(err))
			}
			return nil
		},
	}
}

// nodeRefreshJob requests the full node table after a startup warmup, then
// on a steady interval. The "request" is a fresh want_config handshake:
// the response streams in as FromRadio node_info frames rather than a
// routing ACK, so this goes through SendNoAck.
func nodeRefreshJob(interval, warmup time.Duration, db *store.DB, sender Sender, localNode func() uint32, log *zap.Logger) *Job {
	return &Job{
		Name:     "node-refresh",
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(warmup),
		Fn: func(ctx context.Context) error {
			msg := meshproto.RequestNodeDB(session.NewOutboundPacketID())
			raw, err := meshproto.New().EncodeToRadio(msg)
			if err != nil {
				return fmt.Errorf("scheduler: encode node db request: %w", err)
			}
			if err := sender.SendNoAck(ctx, raw); err != nil {
				log.Warn("scheduler: node db request send failed", zap.Error(err))
			}
			return nil
		},
	}
}

// retentionSweepJob applies the configured retention horizons.
func retentionSweepJob(db *store.DB, log *zap.Logger) *Job {
	return &Job{
		Name:     "retention-sweep",
		Interval: time.Hour,
		Enabled:  true,
		Fn: func(ctx context.Context) error {
			policy, err := retentionPolicyFromSettings(ctx, db)
			if err != nil {
				return err
			}
			if err := db.Sweep(ctx, policy, time.Now()); err != nil {
				return fmt.Errorf("scheduler: retention sweep: %w", err)
			}
			return nil
		},
	}
}

func retentionPolicyFromSettings(ctx context.Context, db *store.DB) (store.RetentionPolicy, error) {
	// The sweep job reads its horizons from settings so they can be tuned at
	// runtime via GET/POST /api/settings without a restart; Default() values
	// are seeded there at first boot (see gateway wiring).
	get := func(key string, def time.Duration) time.Duration {
		v, ok, err := db.GetSetting(ctx, key)
		if !ok || err != nil {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return def
		}
		return d
	}
	return store.RetentionPolicy{
		Telemetry:    get("retention.telemetry", 30*24*time.Hour),
		Messages:     get("retention.messages", 90*24*time.Hour),
		PositionHist: get("retention.position_history", 7*24*time.Hour),
		NeighborInfo: get("retention.neighbor_info", 24*time.Hour),
	}, nil
}

// versionUpdateURL is the upstream endpoint consulted for the latest
// released firmware/server version string.
const versionUpdateURL = "https://api.github.com/repos/meshtastic/firmware/releases/latest"

type versionResponse struct {
	TagName string `json:"tag_name"`
}

// versionCheckJob contacts the update endpoint and records latestVersion in
// settings.
func versionCheckJob(interval time.Duration, db *store.DB, log *zap.Logger) *Job {
	client := &http.Client{Timeout: 10 * time.Second}
	return &Job{
		Name:     "version-check",
		Interval: interval,
		Enabled:  true,
		Fn: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionUpdateURL, nil)
			if err != nil {
				return fmt.Errorf("scheduler: build version check request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				log.Warn("scheduler: version check unreachable", zap.Error(err))
				return nil
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			if err != nil {
				return fmt.Errorf("scheduler: read version check response: %w", err)
			}
			var v versionResponse
			if err := json.Unmarshal(body, &v); err != nil {
				log.Warn("scheduler: version check decode failed", zap.Error(err))
				return nil
			}
			if v.TagName == "" {
				return nil
			}
			if err := db.SetSetting(ctx, "latestVersion", v.TagName); err != nil {
				return fmt.Errorf("scheduler: record latest version: %w", err)
			}
			return nil
		},
	}
}
