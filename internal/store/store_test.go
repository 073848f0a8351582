package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/easycicd/agent/internal/audit"
)

func futureTime() time.Time { return time.Now().UTC().Add(time.Hour) }
func pastTime() time.Time   { return time.Now().UTC().Add(-time.Hour) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Migrate_IsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestCreateProject_AllocatesSequentialPortPairs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1, err := s.CreateProject(ctx, 10000, 14999, ProjectSpec{Name: "alpha", Repo: "org/alpha", RuntimePort: 8080})
	require.NoError(t, err)
	require.Equal(t, 10002, p1.BluePort)
	require.Equal(t, 10003, p1.GreenPort)
	require.Equal(t, SlotBlue, p1.ActiveSlot)
	require.Equal(t, "easycicd-project-1", p1.NetworkName)

	p2, err := s.CreateProject(ctx, 10000, 14999, ProjectSpec{Name: "beta", Repo: "org/beta", RuntimePort: 8080})
	require.NoError(t, err)
	require.Equal(t, 10004, p2.BluePort)
	require.Equal(t, 10005, p2.GreenPort)
}

func TestCreateProject_PortExhausted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, 10000, 10003, ProjectSpec{Name: "alpha", Repo: "org/alpha", RuntimePort: 8080})
	require.NoError(t, err)

	_, err = s.CreateProject(ctx, 10000, 10003, ProjectSpec{Name: "beta", Repo: "org/beta", RuntimePort: 8080})
	require.ErrorIs(t, err, ErrPortExhausted)
}

func TestSetActiveSlot_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SetActiveSlot(context.Background(), 999, SlotGreen)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBuild_AssignsIncrementingBuildNumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, 10000, 14999, ProjectSpec{Name: "alpha", Repo: "org/alpha", RuntimePort: 8080})
	require.NoError(t, err)

	b1, err := s.CreateBuild(ctx, BuildSpec{ProjectID: p.ID, LogPath: "a.log", DeployLogPath: "a.deploy.log"})
	require.NoError(t, err)
	require.Equal(t, int64(1), b1.BuildNumber)
	require.Equal(t, BuildQueued, b1.Status)

	b2, err := s.CreateBuild(ctx, BuildSpec{ProjectID: p.ID, LogPath: "b.log", DeployLogPath: "b.deploy.log"})
	require.NoError(t, err)
	require.Equal(t, int64(2), b2.BuildNumber)
}

func TestFinishBuild_NormalizesLegacyDeployingStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, 10000, 14999, ProjectSpec{Name: "alpha", Repo: "org/alpha", RuntimePort: 8080})
	require.NoError(t, err)
	b, err := s.CreateBuild(ctx, BuildSpec{ProjectID: p.ID, LogPath: "a.log", DeployLogPath: "a.deploy.log"})
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, "UPDATE builds SET status = 'deploying' WHERE id = ?", b.ID)
	require.NoError(t, err)

	got, err := s.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, BuildSuccess, got.Status)
}

func TestCreateContainer_AllocatesLowestFreePort(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.CreateContainer(ctx, 15000, 15002, ContainerSpec{Name: "redis", Image: "redis:7", ContainerPort: 6379})
	require.NoError(t, err)
	require.Equal(t, 15000, c1.HostPort)

	c2, err := s.CreateContainer(ctx, 15000, 15002, ContainerSpec{Name: "redis2", Image: "redis:7", ContainerPort: 6379})
	require.NoError(t, err)
	require.Equal(t, 15001, c2.HostPort)

	require.NoError(t, s.DeleteContainer(ctx, c1.ID))
	require.NoError(t, s.ReleasePort(ctx, c1.HostPort))

	c3, err := s.CreateContainer(ctx, 15000, 15002, ContainerSpec{Name: "redis3", Image: "redis:7", ContainerPort: 6379})
	require.NoError(t, err)
	require.Equal(t, 15000, c3.HostPort, "freed port should be reused before a higher unused one")
}

func TestCreateContainer_NameTaken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateContainer(ctx, 15000, 15010, ContainerSpec{Name: "redis", Image: "redis:7", ContainerPort: 6379})
	require.NoError(t, err)

	_, err = s.CreateContainer(ctx, 15000, 15010, ContainerSpec{Name: "redis", Image: "redis:7", ContainerPort: 6379})
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestCreateContainer_PortExhausted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateContainer(ctx, 15000, 15000, ContainerSpec{Name: "a", Image: "busybox", ContainerPort: 80})
	require.NoError(t, err)

	_, err = s.CreateContainer(ctx, 15000, 15000, ContainerSpec{Name: "b", Image: "busybox", ContainerPort: 80})
	require.ErrorIs(t, err, ErrPortExhausted)
}

func TestMarkPortUsedBySystem_BlocksAllocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkPortUsedBySystem(ctx, 15000))

	_, err := s.CreateContainer(ctx, 15000, 15000, ContainerSpec{Name: "a", Image: "busybox", ContainerPort: 80})
	require.ErrorIs(t, err, ErrPortExhausted)
}

func TestSessions_ExpiredSessionsAreInvisible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "tok-valid", "user-1", futureTime()))
	require.NoError(t, s.CreateSession(ctx, "tok-expired", "user-1", pastTime()))

	got, err := s.GetSession(ctx, "tok-valid")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)

	_, err = s.GetSession(ctx, "tok-expired")
	require.ErrorIs(t, err, ErrNotFound)

	n, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSessions_TokenIsHashedAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "super-secret-token", "user-1", futureTime()))

	var stored string
	require.NoError(t, s.db.QueryRow("SELECT token_hash FROM sessions").Scan(&stored))
	require.NotEqual(t, "super-secret-token", stored)

	got, err := s.GetSession(ctx, "super-secret-token")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)

	_, err = s.GetSession(ctx, "wrong-token")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessions_DeleteSessionRemovesMatchingHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, "tok-a", "user-1", futureTime()))
	require.NoError(t, s.CreateSession(ctx, "tok-b", "user-2", futureTime()))

	require.NoError(t, s.DeleteSession(ctx, "tok-a"))

	_, err := s.GetSession(ctx, "tok-a")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetSession(ctx, "tok-b")
	require.NoError(t, err)
	require.Equal(t, "user-2", got.UserID)
}

func TestAuditAdapter_RoundTripsMeta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateAuditEntry(ctx, &audit.Entry{
		Timestamp:  time.Now().UTC(),
		Actor:      "alice",
		Action:     audit.ActionProjectCreate,
		TargetType: "project",
		TargetID:   "1",
		Meta:       map[string]interface{}{"name": "demo"},
	})
	require.NoError(t, err)

	entries, err := s.GetAuditEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.ActionProjectCreate, entries[0].Action)
	require.Equal(t, "demo", entries[0].Meta["name"])
}
