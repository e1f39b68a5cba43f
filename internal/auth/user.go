package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"_id"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username" bson:"username"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

func (User) TableName() string { return "users" }

// ErrUserNotFound is returned by UserStore lookups that match nothing.
var ErrUserNotFound = errors.New("auth: user not found")

type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// UserRepo is the SQL user store.
type UserRepo struct {
	db *gorm.DB
}

var _ UserStore = (*UserRepo)(nil)

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) CreateUser(ctx context.Context, u *User) error {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&User{}).Where("username = ?", u.Username).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return ErrUserExists
	}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		// lost a race with a concurrent register for the same name
		if _, getErr := r.GetUserByUsername(ctx, u.Username); getErr == nil {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
