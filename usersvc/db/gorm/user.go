package gorm

import (
	"github.com/ichigozero/taskhaven/usersvc"
	"github.com/pkg/errors"
	libgorm "gorm.io/gorm"
)

type userRepository struct {
	db *libgorm.DB
}

// NewUserRepository expects db to be opened with TranslateError so that
// unique violations surface as gorm.ErrDuplicatedKey.
func NewUserRepository(db *libgorm.DB) usersvc.UserRepository {
	return &userRepository{db}
}

func (u *userRepository) Create(user usersvc.User) (usersvc.User, error) {
	err := u.db.Create(&user).Error
	if errors.Is(err, libgorm.ErrDuplicatedKey) {
		return usersvc.User{}, usersvc.ErrEmailTaken
	}
	if err != nil {
		return usersvc.User{}, errors.Wrap(err, "create user")
	}
	return user, nil
}

func (u *userRepository) FindByEmail(email string) (usersvc.User, error) {
	var user usersvc.User
	err := u.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, libgorm.ErrRecordNotFound) {
		return usersvc.User{}, usersvc.ErrUserNotFound
	}
	if err != nil {
		return usersvc.User{}, errors.Wrapf(err, "find user %q", email)
	}
	return user, nil
}

func (u *userRepository) IsExists(id uint64) (bool, error) {
	var count int64
	err := u.db.Model(&usersvc.User{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, errors.Wrapf(err, "count user %d", id)
	}

	if count == 0 {
		return false, usersvc.ErrUserNotFound
	}

	return true, nil
}
