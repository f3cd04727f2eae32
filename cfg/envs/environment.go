package envs

import (
	"bufio"
	"embed"
	"errors"
	"log/slog"
	"os"
	"strings"
)

//go:embed .env.*
var fs embed.FS

// Environment Variables
var (
	PROJECT_ID           string
	LUMEN_ENV            Env
	DB_URL_LUMEN         string
	DB_READ_REPLICAS     string
	GCLOUD_PROJECT       string
	SEARCH_ENGINE_ID     string
	LUMEN_AUDIO_BUCKET   string
	LUMEN_AUDIO_REGION   string
	LUMEN_AUDIO_ENDPOINT string
	LUMEN_AUDIO_KEY_ID   string
	VOICE_AGENT_ID       string
	PRICE_ID_PRO_MONTHLY string
	PRICE_ID_PRO_YEARLY  string
)

type Env string

const (
	EnvLocal   Env = "local"
	EnvStaging Env = "staging"
	EnvProd    Env = "prod"
)

func (e Env) String() string {
	return string(e)
}

type EnvFile string

func (e Env) EnvFile() EnvFile {
	return EnvFile(".env." + e.String())
}

func (e EnvFile) Load() error {
	file, err := fs.Open(string(e))
	if err != nil {
		return err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		os.Setenv(key, value)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

var didLoad = false

func Load() error {
	if didLoad {
		return nil
	}
	env, ok := os.LookupEnv("LUMEN_ENV")
	if !ok {
		slog.Info("LUMEN_ENV not set, using local")
		env = "local"
	}
	LUMEN_ENV = Env(env)
	_, ok = os.LookupEnv("GCLOUD_PROJECT")
	if !ok {
		eFile := LUMEN_ENV.EnvFile()
		slog.Info("Loading environment from file", "file", eFile)
		err := eFile.Load()
		if err != nil {
			return err
		}
	}
	PROJECT_ID, ok = os.LookupEnv("PROJECT_ID")
	if !ok {
		return errors.New("env PROJECT_ID not set")
	}
	DB_URL_LUMEN, ok = os.LookupEnv("DB_URL_LUMEN")
	if !ok {
		return errors.New("env DB_URL_LUMEN not set")
	}
	GCLOUD_PROJECT, ok = os.LookupEnv("GCLOUD_PROJECT")
	if !ok {
		return errors.New("env GCLOUD_PROJECT not set")
	}
	// Optional: comma-separated url|weight pairs for read replicas.
	DB_READ_REPLICAS = os.Getenv("DB_READ_REPLICAS")
	SEARCH_ENGINE_ID = os.Getenv("SEARCH_ENGINE_ID")
	LUMEN_AUDIO_BUCKET = os.Getenv("LUMEN_AUDIO_BUCKET")
	LUMEN_AUDIO_REGION = os.Getenv("LUMEN_AUDIO_REGION")
	LUMEN_AUDIO_ENDPOINT = os.Getenv("LUMEN_AUDIO_ENDPOINT")
	LUMEN_AUDIO_KEY_ID = os.Getenv("LUMEN_AUDIO_KEY_ID")
	VOICE_AGENT_ID = os.Getenv("VOICE_AGENT_ID")
	PRICE_ID_PRO_MONTHLY = os.Getenv("PRICE_ID_PRO_MONTHLY")
	PRICE_ID_PRO_YEARLY = os.Getenv("PRICE_ID_PRO_YEARLY")
	didLoad = true
	slog.Debug("Loaded environment variables",
		"PROJECT_ID", PROJECT_ID,
		"LUMEN_ENV", LUMEN_ENV,
		"DB_URL_LUMEN", DB_URL_LUMEN,
		"GCLOUD_PROJECT", GCLOUD_PROJECT)
	return nil
}
