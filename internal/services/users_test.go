package services_test

import (
	"testing"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service services.UserService
}

func (suite *UserServiceTestSuite) SetupTest() {
	suite.db = openTestDB(suite.T())
	suite.service = services.NewUserService()
}

func (suite *UserServiceTestSuite) TestRegisterUser() {
	user, err := suite.service.RegisterUser(suite.db, services.RegistrationRequest{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "secret123",
		Role:     models.RoleMember,
	}, bcrypt.MinCost)
	suite.Require().NoError(err)
	suite.Equal("carol", user.Username)
	suite.True(user.IsActive)
	suite.True(user.CheckPassword("secret123"))
	suite.NotEqual("secret123", user.Password)
}

func (suite *UserServiceTestSuite) TestRegisterDuplicateUsername() {
	mustCreateUser(suite.db, "carol", "secret123", models.RoleMember, true)

	_, err := suite.service.RegisterUser(suite.db, services.RegistrationRequest{
		Username: "carol",
		Email:    "other@example.com",
		Password: "secret123",
	}, bcrypt.MinCost)
	suite.ErrorIs(err, services.ErrDuplicateUsername)
}

func (suite *UserServiceTestSuite) TestRegisterDuplicateEmail() {
	mustCreateUser(suite.db, "carol", "secret123", models.RoleMember, true)

	_, err := suite.service.RegisterUser(suite.db, services.RegistrationRequest{
		Username: "notcarol",
		Email:    "carol@example.com",
		Password: "secret123",
	}, bcrypt.MinCost)
	suite.ErrorIs(err, services.ErrDuplicateEmail)
}

func (suite *UserServiceTestSuite) TestRegisterUnknownRoleCoercedToMember() {
	user, err := suite.service.RegisterUser(suite.db, services.RegistrationRequest{
		Username: "dave",
		Email:    "dave@example.com",
		Password: "secret123",
		Role:     "superuser",
	}, bcrypt.MinCost)
	suite.Require().NoError(err)
	suite.Equal(models.RoleMember, user.Role)
}

func (suite *UserServiceTestSuite) TestListUsersByRole() {
	mustCreateUser(suite.db, "admin", "x12345", models.RoleAdmin, true)
	mustCreateUser(suite.db, "m1", "x12345", models.RoleMember, true)
	mustCreateUser(suite.db, "m2", "x12345", models.RoleMember, true)

	users, total, err := suite.service.ListUsers(suite.db, services.UserFilter{Role: models.RoleMember})
	suite.Require().NoError(err)
	suite.EqualValues(2, total)
	for _, u := range users {
		suite.Equal(models.RoleMember, u.Role)
	}
}

func (suite *UserServiceTestSuite) TestSetActive() {
	user := mustCreateUser(suite.db, "carol", "secret123", models.RoleMember, true)

	updated, err := suite.service.SetActive(suite.db, user.ID, false)
	suite.Require().NoError(err)
	suite.False(updated.IsActive)

	var stored models.User
	suite.Require().NoError(suite.db.First(&stored, "id = ?", user.ID).Error)
	suite.False(stored.IsActive)
}

func (suite *UserServiceTestSuite) TestGetUserNotFound() {
	_, err := suite.service.GetUser(suite.db, uuid.Must(uuid.NewV4()))
	suite.ErrorIs(err, services.ErrNotFound)
}

func TestUserServiceTestSuite(t *testing.T) {
	suite.Run(t, new(UserServiceTestSuite))
}
