package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bustracking/bustracking/internal/database"
)

func TestConfig_ConnectionString(t *testing.T) {
	cfg := database.Config{
		Host:     "db",
		Port:     5432,
		User:     "bus",
		Password: "p@ss/word",
		Database: "bustracking",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://bus:p%40ss%2Fword@db:5432/bustracking?sslmode=disable", cfg.ConnectionString())
}

func TestConfig_ConnectionString_URLOverride(t *testing.T) {
	cfg := database.Config{URL: "postgres://u:p@h:1/d", Host: "ignored"}

	assert.Equal(t, "postgres://u:p@h:1/d", cfg.ConnectionString())
}
