package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	defaultEnv           = EnvLocal
	defaultMaxLogEntries = 150
	defaultDiffCommand   = "diff"
	defaultMockOrgAddr   = "localhost:8787"
	defaultHTTPTimeout   = 30
)

type Config struct {
	Env           string `mapstructure:"app_env"`
	ProjectDir    string `mapstructure:"project_dir"`
	LoginURL      string `mapstructure:"login_url"`
	MaxLogEntries int    `mapstructure:"max_log_entries"`
	DiffCommand   string `mapstructure:"diff_command"`
	MockOrgAddr   string `mapstructure:"mock_org_addr"`
	HTTPTimeout   int    `mapstructure:"http_timeout_seconds"`
}

// MustLoad загружает конфигурацию процесса из окружения и .env файла
func MustLoad() *Config {
	// Определяем путь к .env файлу (относительно места запуска)
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}

	// Загружаем .env файл если существует
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	viper.AutomaticEnv()

	// Значения по умолчанию
	viper.SetDefault("APP_ENV", defaultEnv)
	viper.SetDefault("PROJECT_DIR", "")
	viper.SetDefault("LOGIN_URL", "")
	viper.SetDefault("MAX_LOG_ENTRIES", defaultMaxLogEntries)
	viper.SetDefault("DIFF_COMMAND", defaultDiffCommand)
	viper.SetDefault("MOCK_ORG_ADDR", defaultMockOrgAddr)
	viper.SetDefault("HTTP_TIMEOUT_SECONDS", defaultHTTPTimeout)

	// Корень проекта - текущая директория, если не переопределён
	projectDir := viper.GetString("PROJECT_DIR")
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		projectDir = wd
	}
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		panic(fmt.Sprintf("Ошибка определения корня проекта: %v", err))
	}

	config := &Config{
		Env:           viper.GetString("APP_ENV"),
		ProjectDir:    projectDir,
		LoginURL:      viper.GetString("LOGIN_URL"),
		MaxLogEntries: viper.GetInt("MAX_LOG_ENTRIES"),
		DiffCommand:   viper.GetString("DIFF_COMMAND"),
		MockOrgAddr:   viper.GetString("MOCK_ORG_ADDR"),
		HTTPTimeout:   viper.GetInt("HTTP_TIMEOUT_SECONDS"),
	}

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}

	return config
}

func (c *Config) validate() error {
	if c.ProjectDir == "" {
		return fmt.Errorf("project_dir не может быть пустым")
	}
	if c.MaxLogEntries <= 0 {
		return fmt.Errorf("max_log_entries должен быть положительным")
	}
	return nil
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == EnvLocal || c.Env == ""
}
