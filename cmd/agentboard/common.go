package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	"github.com/agentboard/agentboard/internal/board"
	"github.com/agentboard/agentboard/internal/config"
	"github.com/agentboard/agentboard/internal/db"
	"github.com/agentboard/agentboard/internal/task"
)

func loadConfig(repoRoot string) (config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(".agentboard", "config.yaml")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	var cfg config.Config
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return config.Config{}, fmt.Errorf("stat config: %w", err)
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	settings := viper.AllSettings()
	delete(settings, "config")
	if err := config.ValidateSettings(settings); err != nil {
		return config.Config{}, err
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func openStores() (*sql.DB, config.Config, func(), error) {
	repoRoot, err := os.Getwd()
	if err != nil {
		return nil, config.Config{}, func() {}, err
	}
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return nil, config.Config{}, func() {}, err
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(".agentboard", "board.db")
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(repoRoot, dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, config.Config{}, func() {}, err
	}
	storeDB, err := db.Open(dbPath)
	if err != nil {
		return nil, config.Config{}, func() {}, err
	}
	return storeDB, cfg, func() { _ = storeDB.Close() }, nil
}

func newService(storeDB *sql.DB, cfg config.Config) (*board.Store, *task.Service) {
	boards := board.NewStore(storeDB)
	service := task.NewService(storeDB, boards, task.WithLease(cfg.Claims.LeaseDuration()))
	return boards, service
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}
