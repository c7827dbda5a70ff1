package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	DB  struct {
		Driver string `validate:"required,oneof=sqlite postgres"`
		// SQLite: путь к файлу базы данных
		Path string
		// PostgreSQL: строка подключения
		DSN      string
		MaxConns int32 `validate:"min=1"`
		MinConns int32 `validate:"min=0"`
		// Echo включает логирование всех выполняемых SQL-запросов
		Echo bool
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Migrations struct {
		// Dir - путь к директории с миграциями (пустой = миграции не применяются)
		Dir string
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.DB.Driver = strings.ToLower(getenv("DB_DRIVER", "sqlite"))
	c.DB.Path = getenv("SQLITE_PATH", "data/relmap.db")
	c.DB.DSN = os.Getenv("DATABASE_URL")
	c.DB.MaxConns = int32(getenvInt("DB_MAX_CONNS", 20))
	c.DB.MinConns = int32(getenvInt("DB_MIN_CONNS", 2))
	c.DB.Echo = getenvBool("SQL_ECHO", false)
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Migrations.Dir = os.Getenv("MIGRATIONS_DIR")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/relmap.log")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.DB.Driver == "postgres" && c.DB.DSN == "" {
		return Config{}, errors.New("DATABASE_URL required when DB_DRIVER=postgres")
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return Config{}, errors.New("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
