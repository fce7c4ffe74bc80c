package db

import (
	"errors"

	"gorm.io/gorm"
)

// GetTariffByID возвращает тариф или nil, если его нет
func GetTariffByID(id uint) (*Tariff, error) {
	var t Tariff
	err := DB.First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTariffByExternalID ищет тариф по номеру в криптопроцессинге (поле tariff
// в callback). Номер необязателен, поэтому совпадение может отсутствовать.
func GetTariffByExternalID(externalID int) (*Tariff, error) {
	var t Tariff
	err := DB.Where("external_id = ?", externalID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func GetActiveTariffs() ([]Tariff, error) {
	var tariffs []Tariff
	err := DB.Where("is_active = true").
		Order("display_order, id").Find(&tariffs).Error
	return tariffs, err
}

func GetAllTariffs() ([]Tariff, error) {
	var tariffs []Tariff
	err := DB.Order("display_order, id").Find(&tariffs).Error
	return tariffs, err
}
