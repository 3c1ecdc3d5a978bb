package postgres

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/dmstream/internal/db"
	"github.com/lalith-99/dmstream/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testPool connects to TEST_DATABASE_URL and applies migrations. Tests are
// skipped when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	database, err := db.New(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(database.Close)
	require.NoError(t, database.Migrate(ctx))
	return database.Pool()
}

func createUser(t *testing.T, users *UserStore) *models.User {
	t.Helper()
	tag := strings.ToUpper(uuid.NewString()[:8])
	u, err := users.Create(context.Background(), models.NewUser{
		Identity:     tag,
		Username:     "u" + tag,
		Email:        tag + "@example.com",
		FullName:     "User " + tag,
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return u
}

func TestListBetween_UsesPairIndexShape(t *testing.T) {
	assert.Contains(t, listBetweenQuery, "LEAST(m.sender_id, m.receiver_id)")
	assert.Contains(t, listBetweenQuery, "GREATEST(m.sender_id, m.receiver_id)")
}

func TestListBetween_BothDirections(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserStore(pool)
	messages := NewMessageStore(pool)

	a, b, c := createUser(t, users), createUser(t, users), createUser(t, users)
	hi, err := models.Text("hi")
	require.NoError(t, err)
	yo, err := models.Text("yo")
	require.NoError(t, err)

	_, err = messages.Create(ctx, a, b, hi)
	require.NoError(t, err)
	_, err = messages.Create(ctx, b, a, yo)
	require.NoError(t, err)
	_, err = messages.Create(ctx, a, c, hi)
	require.NoError(t, err)

	ab, err := messages.ListBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, ab, 2)
	assert.Equal(t, "hi", ab[0].Body.Content())
	assert.Equal(t, a.Identity, ab[0].SenderIdentity)
	assert.Equal(t, "yo", ab[1].Body.Content())

	ba, err := messages.ListBetween(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}
