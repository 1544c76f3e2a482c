package database

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/kbukum/planengine/errors"
	"github.com/kbukum/planengine/logger"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{DSN: ":memory:"}
	cfg.ApplyDefaults()
	if cfg.Driver != "sqlite" {
		t.Fatalf("expected sqlite default driver, got %s", cfg.Driver)
	}
	if cfg.MaxOpenConns != 25 || cfg.MaxIdleConns != 5 || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected pool defaults: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing DSN")
	}

	cfg = Config{DSN: ":memory:", MaxOpenConns: 2, MaxIdleConns: 5}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for idle > open")
	}

	cfg = Config{DSN: ":memory:", ConnMaxLifetime: "soon"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestNewWithDialector_Connects(t *testing.T) {
	cfg := Config{DSN: ":memory:", MaxRetries: 1}
	db, err := NewWithDialector(context.Background(), sqlite.Open(":memory:"), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	type row struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	if err := db.WithContext(context.Background()).Create(&row{Name: "a"}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestDB_CloseIdempotent(t *testing.T) {
	cfg := Config{DSN: ":memory:", MaxRetries: 1}
	db, err := NewWithDialector(context.Background(), sqlite.Open(":memory:"), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
}

func TestFromDatabase_NotFound(t *testing.T) {
	err := FromDatabase(gorm.ErrRecordNotFound, "plan", "p1")
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if err.Details["id"] != "p1" {
		t.Fatalf("expected id detail, got %v", err.Details)
	}
}

func TestFromDatabase_Duplicate(t *testing.T) {
	err := FromDatabase(gorm.ErrDuplicatedKey, "plan", "p1")
	if err.Code != apperrors.ErrCodeAlreadyExists {
		t.Fatalf("expected ALREADY_EXISTS, got %s", err.Code)
	}
}

func TestFromDatabase_Transient(t *testing.T) {
	err := FromDatabase(errors.New("connection refused"), "plan execution", "")
	if !err.Retryable {
		t.Fatal("connection errors should be retryable")
	}
	err = FromDatabase(errors.New("database is locked"), "plan execution", "")
	if !err.Retryable {
		t.Fatal("lock errors should be retryable")
	}
}

func TestIsRetryableError(t *testing.T) {
	if !IsRetryableError(errors.New("Deadlock detected")) {
		t.Fatal("deadlock should be retryable")
	}
	if IsRetryableError(errors.New("syntax error")) {
		t.Fatal("syntax errors must not be retryable")
	}
	if IsRetryableError(nil) {
		t.Fatal("nil is not retryable")
	}
}
