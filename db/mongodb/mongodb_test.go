package mongodb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vocdoni/evote-tally/db"
	"github.com/vocdoni/evote-tally/db/internal/dbtest"
	"github.com/vocdoni/evote-tally/db/prefixeddb"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// testURI returns $MONGODB_URL or, with EVOTE_TEST_DOCKER=true, the URI of
// a throwaway mongo container shared by the package tests.
func testURI(t *testing.T) string {
	if uri := os.Getenv("MONGODB_URL"); uri != "" {
		return uri
	}
	if os.Getenv("EVOTE_TEST_DOCKER") != "true" {
		t.Skip("set MONGODB_URL or EVOTE_TEST_DOCKER=true to run the mongodb tests")
	}
	mongoOnce.Do(func() {
		ctx := context.Background()
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor:   wait.ForListeningPort("27017/tcp"),
			},
			Started: true,
		})
		if err != nil {
			mongoErr = err
			return
		}
		host, err := container.Host(ctx)
		if err != nil {
			mongoErr = err
			return
		}
		port, err := container.MappedPort(ctx, "27017/tcp")
		if err != nil {
			mongoErr = err
			return
		}
		mongoURI = fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	})
	if mongoErr != nil {
		t.Fatalf("cannot start mongo container: %v", mongoErr)
	}
	return mongoURI
}

func newTestDB(t *testing.T) *MongoDB {
	database, err := New(db.Options{Path: "evote-" + uuid.NewString()[:8], URI: testURI(t)})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newTestDB(t))
}

func TestWriteTxApply(t *testing.T) {
	dbtest.TestWriteTxApply(t, newTestDB(t))
}

func TestWriteTxApplyPrefixed(t *testing.T) {
	database := newTestDB(t)
	dbtest.TestWriteTxApplyPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, []byte("one")))
}

func TestNewWithoutURI(t *testing.T) {
	t.Setenv("MONGODB_URL", "")
	_, err := New(db.Options{Path: "x"})
	qt.Assert(t, err, qt.IsNotNil)
}
