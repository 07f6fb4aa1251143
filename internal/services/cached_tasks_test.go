package services_test

import (
	"testing"

	"taskflow/backend/internal/cache"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type CachedTaskServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	redis   *miniredis.Miniredis
	cache   *cache.MultiLevelCache
	service *services.CachedTaskService

	admin *models.User
	alice *models.User
	bob   *models.User

	adminCaller services.Caller
	aliceCaller services.Caller
	bobCaller   services.Caller
}

func (suite *CachedTaskServiceTestSuite) SetupTest() {
	suite.db = openTestDB(suite.T())

	mr, err := miniredis.Run()
	suite.Require().NoError(err)
	suite.redis = mr

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	suite.cache = cache.NewMultiLevelCache(cache.NewRedisCacheFromClient(client))
	suite.service = services.NewCachedTaskService(services.NewTaskService(), suite.cache)

	suite.admin = mustCreateUser(suite.db, "admin", "admin123", models.RoleAdmin, true)
	suite.alice = mustCreateUser(suite.db, "alice", "secret123", models.RoleMember, true)
	suite.bob = mustCreateUser(suite.db, "bob", "secret123", models.RoleMember, true)

	suite.adminCaller = services.Caller{ID: suite.admin.ID, Role: models.RoleAdmin}
	suite.aliceCaller = services.Caller{ID: suite.alice.ID, Role: models.RoleMember}
	suite.bobCaller = services.Caller{ID: suite.bob.ID, Role: models.RoleMember}
}

func (suite *CachedTaskServiceTestSuite) TearDownTest() {
	suite.cache.Close()
	suite.redis.Close()
}

func (suite *CachedTaskServiceTestSuite) TestGetTaskServedFromCache() {
	task, err := suite.service.CreateTask(suite.db, suite.adminCaller, services.CreateTaskInput{
		Title:    "cached read",
		Assignee: "alice",
	})
	suite.Require().NoError(err)

	// First read warms the cache, delete the row, second read still hits.
	got, err := suite.service.GetTask(suite.db, suite.adminCaller, task.ID)
	suite.Require().NoError(err)
	suite.Equal(task.ID, got.ID)

	suite.Require().NoError(suite.db.Exec("DELETE FROM tasks WHERE id = ?", task.ID).Error)

	got, err = suite.service.GetTask(suite.db, suite.adminCaller, task.ID)
	suite.Require().NoError(err)
	suite.Equal(task.Title, got.Title)
}

func (suite *CachedTaskServiceTestSuite) TestCachedTaskNeverLeaksAcrossCallers() {
	task, err := suite.service.CreateTask(suite.db, suite.adminCaller, services.CreateTaskInput{
		Title:    "alice only",
		Assignee: "alice",
	})
	suite.Require().NoError(err)

	// Warm the cache as an allowed caller, then read as a stranger.
	_, err = suite.service.GetTask(suite.db, suite.aliceCaller, task.ID)
	suite.Require().NoError(err)

	_, err = suite.service.GetTask(suite.db, suite.bobCaller, task.ID)
	suite.ErrorIs(err, services.ErrForbidden)
}

func (suite *CachedTaskServiceTestSuite) TestListCacheInvalidatedOnWrite() {
	_, err := suite.service.CreateTask(suite.db, suite.adminCaller, services.CreateTaskInput{Title: "one"})
	suite.Require().NoError(err)

	_, total, err := suite.service.ListTasks(suite.db, suite.adminCaller, services.TaskFilter{})
	suite.Require().NoError(err)
	suite.EqualValues(1, total)

	_, err = suite.service.CreateTask(suite.db, suite.adminCaller, services.CreateTaskInput{Title: "two"})
	suite.Require().NoError(err)

	_, total, err = suite.service.ListTasks(suite.db, suite.adminCaller, services.TaskFilter{})
	suite.Require().NoError(err)
	suite.EqualValues(2, total)
}

func (suite *CachedTaskServiceTestSuite) TestStatsCacheScopedPerCaller() {
	_, err := suite.service.CreateTask(suite.db, suite.adminCaller, services.CreateTaskInput{Title: "for alice", Assignee: "alice"})
	suite.Require().NoError(err)
	_, err = suite.service.CreateTask(suite.db, suite.adminCaller, services.CreateTaskInput{Title: "for bob", Assignee: "bob"})
	suite.Require().NoError(err)

	adminStats, err := suite.service.Stats(suite.db, suite.adminCaller)
	suite.Require().NoError(err)
	suite.EqualValues(2, adminStats.Total)

	aliceStats, err := suite.service.Stats(suite.db, suite.aliceCaller)
	suite.Require().NoError(err)
	suite.EqualValues(1, aliceStats.Total)
}

func (suite *CachedTaskServiceTestSuite) TestWorksWithMemoryOnlyCache() {
	memOnly := services.NewCachedTaskService(services.NewTaskService(), cache.NewMultiLevelCache(nil))

	task, err := memOnly.CreateTask(suite.db, suite.adminCaller, services.CreateTaskInput{Title: "no redis"})
	suite.Require().NoError(err)

	got, err := memOnly.GetTask(suite.db, suite.adminCaller, task.ID)
	suite.Require().NoError(err)
	suite.Equal(task.ID, got.ID)
}

func TestCachedTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CachedTaskServiceTestSuite))
}
