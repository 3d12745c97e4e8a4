package models

// ModelsToAutoMigrate returns the models in dependency order for
// gorm.AutoMigrate. The generated tsvector column and the vector/GIN
// indexes are added afterwards by the pkg/database bootstrap DDL.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Library{}, // Must be first - other tables reference it
		&Documento{},
		&Chapter{},
		&DocEmbedding{},
	}
}
