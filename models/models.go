package models

// All returns every persisted model, in dependency order, for AutoMigrate
func All() []interface{} {
	return []interface{}{
		&User{},
		&Product{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&OrderPayment{},
		&CustomerDiscountRule{},
		&PromoCode{},
		&PointEarningRule{},
		&FidelityPointBalance{},
		&FidelityPointsTransaction{},
	}
}
