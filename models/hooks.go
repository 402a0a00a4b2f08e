package models

import "gorm.io/gorm"

// Versioned rows start at version 1 so the first optimistic update can compare against it.

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.Version == 0 {
		o.Version = 1
	}
	return nil
}

func (r *CustomerDiscountRule) BeforeCreate(tx *gorm.DB) error {
	if r.Version == 0 {
		r.Version = 1
	}
	return nil
}

func (p *PromoCode) BeforeCreate(tx *gorm.DB) error {
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}

func (b *FidelityPointBalance) BeforeCreate(tx *gorm.DB) error {
	if b.Version == 0 {
		b.Version = 1
	}
	return nil
}
