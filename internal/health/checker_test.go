package health

import (
	"context"
	"testing"

	"github.com/iris-network/iris/internal/infra/registry"
	"github.com/iris-network/iris/internal/infra/sqlite"
	"github.com/iris-network/iris/internal/infra/stream"
)

// ═══ Health Checker Tests ═══════════════════════════════════════════════════

func TestCheckHealthy(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	c := NewChecker(db, registry.New(), stream.NewHub(), dir)
	report := c.Check(context.Background())

	if !report.Healthy {
		t.Fatalf("report = %+v, want healthy", report)
	}
	if len(report.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(report.Checks))
	}
	if report.NodesConnected != 0 || report.NodesOnline != 0 {
		t.Errorf("empty pool reported as %d/%d", report.NodesConnected, report.NodesOnline)
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy disagrees with the report")
	}
}

func TestCheckFailsOnMissingDataDir(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	c := NewChecker(db, registry.New(), stream.NewHub(), dir+"/does-not-exist")
	report := c.Check(context.Background())

	if report.Healthy {
		t.Fatal("missing data dir should fail the check")
	}
	found := false
	for _, s := range report.Checks {
		if s.Name == "data_dir" && !s.Healthy && s.Error != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("data_dir failure not reported: %+v", report.Checks)
	}
}
