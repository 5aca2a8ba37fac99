package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/config"
	"libradesk/internal/logger"
	"libradesk/internal/membership"
)

func TestContainerBootstrapsAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = filepath.Join(t.TempDir(), "libradesk.db")
	cfg.Database.BootstrapSchema = true
	cfg.Server.Port = "0"
	cfg.Sweep.Enabled = false

	injector := NewContainer(cfg, logger.Discard(), BuildInfo{Version: "test"})
	require.NoError(t, Bootstrap(injector))

	ctx := context.Background()
	books := do.MustInvoke[catalog.Service](injector)
	students := do.MustInvoke[membership.Service](injector)
	issues := do.MustInvoke[circulation.Service](injector)

	book, err := books.AddBook(ctx, "978-0134190440", "The Go Programming Language", "Donovan", 1)
	require.NoError(t, err)
	student, err := students.RegisterStudent(ctx, "wire@example.com", "Wire", "R-1", "correct horse")
	require.NoError(t, err)
	_, err = issues.IssueBook(ctx, book.ID, student.UserID, 7)
	require.NoError(t, err)

	scheduler := do.MustInvoke[*SchedulerHandle](injector)
	assert.False(t, scheduler.IsRunning())
	report := scheduler.TriggerNow(ctx)
	assert.Empty(t, report.Error)

	assert.NotPanics(t, func() { _ = injector.Shutdown() })
}
