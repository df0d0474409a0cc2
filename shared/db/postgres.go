package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PostgresDB struct {
	ConnectionString string
	DB               *gorm.DB
}

func BuildConnectionString(host, port, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

func NewPostgresDB(connectionString string) *PostgresDB {
	return &PostgresDB{
		ConnectionString: connectionString,
	}
}

func (db *PostgresDB) Init() error {
	gdb, err := gorm.Open(postgres.Open(db.ConnectionString), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return err
	}

	db.DB = gdb
	return nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *PostgresDB) GetDB() *gorm.DB {
	return db.DB
}

func (db *PostgresDB) Migrate(models ...interface{}) error {
	return db.DB.AutoMigrate(models...)
}
