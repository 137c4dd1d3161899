package migration

import (
	"fmt"

	"github.com/BaSui01/tripflow/config"
)

// NewMigratorFromConfig 由应用配置创建迁移器
func NewMigratorFromConfig(cfg *config.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig 由数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig) (*DefaultMigrator, error) {
	dbURL, dbType, err := DatabaseURL(dbCfg)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}

// DatabaseURL 把 database 配置段转换为迁移器 URL；sqlite 的 name 为文件路径
func DatabaseURL(dbCfg config.DatabaseConfig) (string, DatabaseType, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return "", "", fmt.Errorf("invalid database type: %w", err)
	}
	switch dbType {
	case DatabaseTypePostgres:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode), dbType, nil
	case DatabaseTypeMySQL:
		return BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, ""), dbType, nil
	default:
		return BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", ""), dbType, nil
	}
}

// NewMigratorFromURL 由显式 URL 创建迁移器（--db-type/--db-url）
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
