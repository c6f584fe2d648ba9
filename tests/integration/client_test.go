//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/perimetra/gwadmin/internal/testutil"
	"github.com/perimetra/gwadmin/pkg/bulk"
	"github.com/perimetra/gwadmin/pkg/checkpoint"
	"github.com/perimetra/gwadmin/pkg/client"
	"github.com/perimetra/gwadmin/pkg/search"
	"github.com/perimetra/gwadmin/pkg/stream"
)

// setupRedis starts a Redis container and returns a connected client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		redisContainer.Terminate(ctx)
	})

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() {
		redisClient.Close()
	})

	return redisClient
}

func seedTraffic(mock *testutil.MockPlatform, n int) {
	docs := make([]testutil.TrafficDoc, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, testutil.TrafficDoc{
			ID:        fmt.Sprintf("doc-%04d", i),
			Timestamp: int64(1000 + i),
			Service:   "orders",
			Status:    200,
		})
	}
	mock.SeedTraffic(docs)
}

func trafficQuery() *search.Query {
	return search.NewQuery("/api/es/traffic/_search").
		Size(10).
		SortAsc("@timestamp").
		Tiebreak("correlationId")
}

// TestSessionExportPurgeFlow drives a full admin run: login, cursor export
// of the matching documents, bulk purge of the exported ids, logout.
func TestSessionExportPurgeFlow(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	mock.EnableAuth("admin", "secret")
	seedTraffic(mock, 35)

	c, err := client.New(client.DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	session, err := c.Login(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	scanner, err := search.NewScanner(search.Config{Doer: session, Query: trafficQuery()})
	if err != nil {
		t.Fatalf("NewScanner() failed: %v", err)
	}
	docs, err := stream.Collect(scanner.Documents(ctx))
	if err != nil {
		t.Fatalf("Documents() failed: %v", err)
	}
	if len(docs) != 35 {
		t.Fatalf("Exported %d documents, want 35", len(docs))
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	outcomes, err := bulk.DeleteAll(ctx, session, "traffic", ids, bulk.Options{
		Path:        "/api/es/traffic/_bulk",
		FailOnError: true,
		BatchSize:   20,
	})
	if err != nil {
		t.Fatalf("DeleteAll() failed: %v", err)
	}
	if len(outcomes) != 35 {
		t.Fatalf("Got %d outcomes, want 35", len(outcomes))
	}
	for i, outcome := range outcomes {
		if !outcome.OK() {
			t.Errorf("Outcome %d (%s) failed: %v", i, outcome.ID, outcome.Err)
		}
		if outcome.ID != ids[i] {
			t.Errorf("Outcome %d out of submission order: got %s, want %s", i, outcome.ID, ids[i])
		}
	}
	if mock.TrafficCount() != 0 {
		t.Errorf("Index still holds %d documents after purge", mock.TrafficCount())
	}

	if err := session.Logout(ctx); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if _, err := session.Do(ctx, &client.Request{Path: "/api/v1/users"}); !errors.Is(err, client.ErrSessionClosed) {
		t.Errorf("Do() after logout = %v, want ErrSessionClosed", err)
	}
}

// TestCheckpointedExportResumes interrupts an export mid-scan, then resumes
// it from the Redis checkpoint and verifies nothing is lost or repeated.
func TestCheckpointedExportResumes(t *testing.T) {
	redisClient := setupRedis(t)
	store := checkpoint.NewStore(redisClient, 0)

	mock := testutil.NewMockPlatform()
	defer mock.Close()
	seedTraffic(mock, 47)

	c, err := client.New(client.DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()

	// First run: export three pages, checkpoint after each, then stop as
	// an interrupted script would.
	scanner, err := search.NewScanner(search.Config{Doer: c, Query: trafficQuery()})
	if err != nil {
		t.Fatalf("NewScanner() failed: %v", err)
	}

	var exported []string
	pages := 0
	for page, err := range scanner.Pages(ctx) {
		if err != nil {
			t.Fatalf("Pages() failed: %v", err)
		}
		for _, hit := range page.Hits {
			exported = append(exported, hit.ID)
		}
		cursor := checkpoint.Cursor{
			SortKey:   page.After,
			Documents: int64(len(exported)),
			RunID:     "run-1",
		}
		if err := store.Save(ctx, "resume-test", cursor); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		pages++
		if pages == 3 {
			break
		}
	}
	if len(exported) != 30 {
		t.Fatalf("First run exported %d documents, want 30", len(exported))
	}

	// Second run: a fresh process loads the checkpoint and continues. The
	// numeric sort key has been through JSON, arriving as float64; the
	// search body accepts it either way.
	cursor, err := store.Load(ctx, "resume-test")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cursor.Documents != 30 {
		t.Fatalf("Checkpoint documents = %d, want 30", cursor.Documents)
	}

	resumed, err := search.NewScanner(search.Config{
		Doer:  c,
		Query: trafficQuery().After(cursor.SortKey),
	})
	if err != nil {
		t.Fatalf("NewScanner() for resume failed: %v", err)
	}
	docs, err := stream.Collect(resumed.Documents(ctx))
	if err != nil {
		t.Fatalf("Resumed Documents() failed: %v", err)
	}
	for _, doc := range docs {
		exported = append(exported, doc.ID)
	}

	if len(exported) != 47 {
		t.Fatalf("Exported %d documents across both runs, want 47", len(exported))
	}
	seen := make(map[string]bool, len(exported))
	for i, id := range exported {
		if seen[id] {
			t.Errorf("Document %s exported twice", id)
		}
		seen[id] = true
		if want := fmt.Sprintf("doc-%04d", i); id != want {
			t.Errorf("Position %d: got %s, want %s", i, id, want)
		}
	}

	if err := store.Clear(ctx, "resume-test"); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
}

// TestExportAbortsOnServerError verifies that a mid-scan failure surfaces
// to the consumer while the already delivered documents stay valid.
func TestExportAbortsOnServerError(t *testing.T) {
	mock := testutil.NewMockPlatform()
	defer mock.Close()
	seedTraffic(mock, 25)

	c, err := client.New(client.DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()

	scanner, err := search.NewScanner(search.Config{Doer: c, Query: trafficQuery()})
	if err != nil {
		t.Fatalf("NewScanner() failed: %v", err)
	}

	var delivered int
	var scanErr error
	for page, err := range scanner.Pages(ctx) {
		if err != nil {
			scanErr = err
			break
		}
		delivered += len(page.Hits)
		if delivered >= 10 {
			// Break the backend under the scan.
			mock.SetResponse("/api/es/traffic/_search", testutil.MockResponse{
				StatusCode: 503,
				Body:       `{"error":"index unavailable"}`,
			})
		}
	}

	if scanErr == nil {
		t.Fatal("Scan finished despite the backend failing")
	}
	var apiErr *client.APIError
	if !errors.As(scanErr, &apiErr) || apiErr.StatusCode != 503 {
		t.Errorf("Scan error = %v, want an APIError with status 503", scanErr)
	}
	if delivered != 10 {
		t.Errorf("Delivered %d documents before the failure, want 10", delivered)
	}
}
