package importer

import (
	"context"
	"testing"
	"time"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/filestore"

	"github.com/google/uuid"
)

func TestEnqueueFullQueue(t *testing.T) {
	s, _ := newTestService(t)
	pool := NewPool(s, 1, 2)
	// Workers are not started, so the queue only drains into its buffer.

	if err := pool.Enqueue(Task{JobID: uuid.New(), Kind: TaskProcess}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := pool.Enqueue(Task{JobID: uuid.New(), Kind: TaskProcess}); err != nil {
		t.Fatalf("second enqueue failed: %v", err)
	}
	if err := pool.Enqueue(Task{JobID: uuid.New(), Kind: TaskProcess}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestPoolProcessesJob(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create filestore: %v", err)
	}
	store := newMemStore()
	s := NewService(store, files)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(s, 2, 16)
	pool.Start(ctx)

	// CreateJob schedules the parse+validate task on the pool it was
	// attached to.
	job := createJob(t, s, uuid.New(), "P1", upload("1234567.csv",
		"lot_no,product_name,quantity\n1234567,Widget,100\n"))

	deadline := time.After(5 * time.Second)
	for {
		loaded, err := store.Jobs().GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("failed to load job: %v", err)
		}
		if loaded.Status == domain.JobReady {
			if loaded.TotalRows != 1 {
				t.Errorf("expected 1 total row, got %d", loaded.TotalRows)
			}
			return
		}
		if loaded.Status.Terminal() {
			t.Fatalf("job ended in %s: %s", loaded.Status, loaded.ErrorSummary)
		}
		select {
		case <-deadline:
			t.Fatalf("job never reached READY, last status %s", loaded.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTaskKindString(t *testing.T) {
	if TaskProcess.String() != "process" || TaskCommit.String() != "commit" {
		t.Error("unexpected task kind names")
	}
	if TaskKind(99).String() != "unknown" {
		t.Error("expected unknown for out-of-range kind")
	}
}
