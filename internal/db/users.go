package db

import (
	"errors"

	"gorm.io/gorm"
)

// GetOrCreateUser находит пользователя по Telegram ID или создаёт нового.
// Username обновляется при каждом обращении, он может меняться.
func GetOrCreateUser(telegramID int64, username string) (*User, error) {
	var user User
	err := DB.Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{TelegramID: telegramID, Username: username}
		if err := DB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}
	if username != "" && user.Username != username {
		DB.Model(&user).Update("username", username)
		user.Username = username
	}
	return &user, nil
}

func GetUserByTelegramID(telegramID int64) (*User, error) {
	var user User
	err := DB.Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByID(id uint) (*User, error) {
	var user User
	err := DB.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
