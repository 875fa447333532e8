package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
	"github.com/yndnr/pairmesh-go/internal/telemetry/logger"
)

func newControl(env *testEnv) *ControlService {
	return NewControlService(env.sup, env.store, env.dirs, logger.Discard())
}

func TestControl_RequestSessionScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctl := newControl(env)
	ctx := context.Background()

	res, err := ctl.RequestSession(ctx, "123", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusInitiated || res.Identity != "123" {
		t.Errorf("first request = %+v", res)
	}

	res, err = ctl.RequestSession(ctx, "123", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusAlreadyConnected {
		t.Errorf("second request = %+v", res)
	}

	active := ctl.ListActive()
	if active.Count != 1 || len(active.Identities) != 1 || active.Identities[0] != "123" {
		t.Errorf("ListActive() = %+v", active)
	}

	health := ctl.HealthCheck()
	if health.Status != "active" || health.ActiveCount != 1 {
		t.Errorf("HealthCheck() = %+v", health)
	}
}

func TestControl_ForceOnLiveIdentityDoesNotPurge(t *testing.T) {
	env := newTestEnv(t, nil)
	ctl := newControl(env)
	ctx := context.Background()

	env.store.put("123", `{"keep":true}`, true)
	if _, err := ctl.RequestSession(ctx, "123", false); err != nil {
		t.Fatal(err)
	}

	res, err := ctl.RequestSession(ctx, "123", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusAlreadyConnected {
		t.Errorf("forced request on live identity = %+v", res)
	}
	if rec, ok := env.store.get("123"); !ok || !rec.active {
		t.Error("stored credentials purged for a live identity")
	}
}

func TestControl_ForceReplace(t *testing.T) {
	env := newTestEnv(t, nil)
	ctl := newControl(env)
	ctx := context.Background()

	env.store.put("123", `{"stale":true}`, true)
	if err := env.dirs.WriteCreds("123", []byte(`{"stale":true}`)); err != nil {
		t.Fatal(err)
	}

	res, err := ctl.RequestSession(ctx, "123", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusInitiated {
		t.Errorf("forced request = %+v", res)
	}
	if _, ok := env.store.get("123"); ok {
		t.Error("stored record survived force replace")
	}
	if _, found, _ := env.dirs.ReadCreds("123"); found {
		t.Error("stale creds.json survived force replace")
	}
}

func TestControl_RequestSessionInvalid(t *testing.T) {
	env := newTestEnv(t, nil)
	ctl := newControl(env)

	if _, err := ctl.RequestSession(context.Background(), "call me", false); !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Errorf("error = %v, want ErrInvalidIdentity", err)
	}
}

func TestControl_SessionInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	ctl := newControl(env)

	if _, err := ctl.SessionInfo("123"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("SessionInfo() on missing = %v", err)
	}

	before := time.Now()
	if _, err := ctl.RequestSession(context.Background(), "123", false); err != nil {
		t.Fatal(err)
	}

	info, err := ctl.SessionInfo("123")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Connected || info.Identity != "123" || info.CreatedAt.Before(before) {
		t.Errorf("SessionInfo() = %+v", info)
	}
}

func TestControl_PurgeSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctl := newControl(env)
	ctx := context.Background()

	env.store.put("123", "{}", true)
	if _, err := ctl.RequestSession(ctx, "123", false); err != nil {
		t.Fatal(err)
	}
	tr := env.factory.Created()[0]

	if err := ctl.PurgeSession(ctx, "123"); err != nil {
		t.Fatal(err)
	}
	if !tr.Closed() || env.sup.Registry().Has("123") {
		t.Error("connection survived purge")
	}
	if _, ok := env.store.get("123"); ok {
		t.Error("record survived purge")
	}
	if _, err := os.Stat(env.dirs.Path("123")); !os.IsNotExist(err) {
		t.Error("working directory survived purge")
	}

	// Idempotent.
	if err := ctl.PurgeSession(ctx, "123"); err != nil {
		t.Errorf("second PurgeSession() = %v", err)
	}
}

func TestRecoverAll(t *testing.T) {
	env := newTestEnv(t, func(cfg *SupervisorConfig) {
		cfg.RecoveryConcurrency = 2
	})
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "4"} {
		env.store.put(id, "{}", true)
	}
	env.store.put("5", "{}", false)

	if _, err := env.sup.Start(ctx, "2"); err != nil {
		t.Fatal(err)
	}

	report, err := env.sup.RecoverAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 4 || report.Started != 3 || report.Skipped != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if ids := env.sup.Registry().Identities(); len(ids) != 4 {
		t.Errorf("live identities = %v", ids)
	}
}

func TestRecoverAll_FailureIsolated(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, id := range []string{"1", "2"} {
		env.store.put(id, "{}", true)
	}
	env.factory.SetError(errors.New("gateway down"))

	report, err := env.sup.RecoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 2 || report.Started != 0 {
		t.Errorf("report = %+v", report)
	}
}
