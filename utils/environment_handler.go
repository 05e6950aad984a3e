package utils

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ENV               = "ENV"
	PORT              = "PORT"
	MONGODB_URI       = "MONGODB_URI"
	MYSQL_URI         = "MYSQL_URI"
	REDIS_URI         = "REDIS_URI"
	LARAVEL_API_URL   = "LARAVEL_API_URL"
	STORE_DRIVER      = "STORE_DRIVER"
	CHARGE_TIMEOUT    = "CHARGE_TIMEOUT"
	LOCK_TTL          = "LOCK_TTL"
	LOCK_WAIT         = "LOCK_WAIT"
	BULK_CONCURRENCY  = "BULK_CONCURRENCY"
	BULK_MAX_CONTACTS = "BULK_MAX_CONTACTS"
	BULK_JOB_TTL      = "BULK_JOB_TTL"

	ENV_DEVELOPMENT = "development"
	ENV_HOMOLOG     = "homolog"
	ENV_RELEASE     = "production"

	STORE_DRIVER_MONGODB = "mongodb"
	STORE_DRIVER_MEMORY  = "memory"
)

var allowedKeys = []string{
	ENV, PORT, MONGODB_URI, MYSQL_URI, REDIS_URI, LARAVEL_API_URL, STORE_DRIVER,
	CHARGE_TIMEOUT, LOCK_TTL, LOCK_WAIT, BULK_CONCURRENCY, BULK_MAX_CONTACTS, BULK_JOB_TTL,
}

var allowedEnvValues = []string{ENV_DEVELOPMENT, ENV_HOMOLOG, ENV_RELEASE}

type Config struct {
	Env             string        `env:"ENV" envDefault:"development"`
	Port            string        `env:"PORT" envDefault:"8080"`
	MongoURI        string        `env:"MONGODB_URI"`
	MySQLURI        string        `env:"MYSQL_URI"`
	RedisURI        string        `env:"REDIS_URI"`
	LaravelAPIURL   string        `env:"LARAVEL_API_URL" envDefault:"http://localhost:8000"`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"mongodb"`
	ChargeTimeout   time.Duration `env:"CHARGE_TIMEOUT" envDefault:"5s"`
	LockTTL         time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	LockWait        time.Duration `env:"LOCK_WAIT" envDefault:"10s"`
	BulkConcurrency int           `env:"BULK_CONCURRENCY" envDefault:"8"`
	BulkMaxContacts int           `env:"BULK_MAX_CONTACTS" envDefault:"5000"`
	BulkJobTTL      time.Duration `env:"BULK_JOB_TTL" envDefault:"24h"`
}

// LoadEnvFile copies key=value pairs from a .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(filePath string) error {
	file, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("[ENV] Erro ao abrir o arquivo .env: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("[ENV] Formato inválido na linha %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) > 1 && ((strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"")) ||
			(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'"))) {
			value = value[1 : len(value)-1]
		}

		if !slices.Contains(allowedKeys, key) {
			return fmt.Errorf("[ENV] Chave '%s' não é permitida. Chaves permitidas: %s",
				key, strings.Join(allowedKeys, ", "))
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("[ENV] Erro ao definir variável de ambiente %s: %w", key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("[ENV] Erro ao ler o arquivo .env: %w", err)
	}
	return nil
}

// LoadConfig parses the process environment into a validated Config.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// LoadConfigFrom parses cfg from the given map instead of the process environment.
func LoadConfigFrom(environment map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: environment})
}

func parseConfig(opts env.Options) (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !slices.Contains(allowedEnvValues, c.Env) {
		return fmt.Errorf("[ENV] Valor inválido para ENV: %s. Valores permitidos: %s",
			c.Env, strings.Join(allowedEnvValues, ", "))
	}

	switch c.StoreDriver {
	case STORE_DRIVER_MONGODB:
		if c.MongoURI == "" {
			return fmt.Errorf("[ENV] %s é obrigatório quando %s=%s", MONGODB_URI, STORE_DRIVER, STORE_DRIVER_MONGODB)
		}
	case STORE_DRIVER_MEMORY:
		if c.Env == ENV_RELEASE {
			return fmt.Errorf("[ENV] %s=%s não é permitido em produção", STORE_DRIVER, STORE_DRIVER_MEMORY)
		}
	default:
		return fmt.Errorf("[ENV] Valor inválido para %s: %s", STORE_DRIVER, c.StoreDriver)
	}

	if c.BulkConcurrency <= 0 || c.BulkMaxContacts <= 0 {
		return fmt.Errorf("[ENV] %s e %s devem ser positivos", BULK_CONCURRENCY, BULK_MAX_CONTACTS)
	}
	return nil
}
