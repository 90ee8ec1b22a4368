//go:build integration
// +build integration

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/certexam-service/internal/region"
	"github.com/kjstillabower/certexam-service/internal/service"
	"github.com/kjstillabower/certexam-service/internal/testhelpers"
)

func TestIntegration_WeatherAndCatalog(t *testing.T) {
	svcs := testhelpers.SetupIntegrationServices(t, testhelpers.GetIntegrationConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := svcs.Backend.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	first, err := svcs.Weather.Payload(ctx, region.Capital)
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	second, err := svcs.Weather.Payload(ctx, region.Capital)
	if err != nil {
		t.Fatalf("Payload() second call error = %v", err)
	}
	if first.TmFc != second.TmFc {
		t.Errorf("cached payload tmFc = %q, want %q", second.TmFc, first.TmFc)
	}

	snap, stale, err := svcs.Catalog.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if stale {
		t.Error("fresh snapshot reported stale")
	}
	t.Logf("catalog: %d certifications, %d terminals", len(snap.Certifications), len(snap.Terminals))

	session := service.NewSession(svcs.Weather, time.Local, nil)
	if err := session.Load(ctx, []region.Region{region.Capital, region.Jeju}); err != nil {
		t.Fatalf("Session.Load() error = %v", err)
	}
	if !session.Loaded(region.Jeju) {
		t.Error("Jeju not loaded")
	}
}
