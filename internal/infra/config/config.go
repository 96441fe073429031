package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Local"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	APIToken    string `envconfig:"API_TOKEN"`

	TargetGroups []string `envconfig:"TARGET_GROUPS" default:"retail all-stars,Seeds+Customer Support,Winwise Agent Support,Merchant Acquisition_Paybox"`
	GroupsFile   string   `envconfig:"GROUPS_FILE"`

	Logs struct {
		Dir string `envconfig:"LOG_DIR" default:"message-logs"`
	} `envconfig:""`

	Summaries struct {
		Dir        string `envconfig:"SUMMARY_DIR" default:"summaries"`
		ChunkChars int    `envconfig:"SUMMARY_CHUNK_CHARS" default:"15000"`
	} `envconfig:""`

	Ingest struct {
		Buffer int `envconfig:"INGEST_BUFFER" default:"256"`
	} `envconfig:""`

	OpenAI struct {
		APIKey             string        `envconfig:"OPENAI_API_KEY"`
		BaseURL            string        `envconfig:"OPENAI_BASE_URL"`
		Model              string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout            time.Duration `envconfig:"OPENAI_TIMEOUT" default:"120s"`
		CABundle           string        `envconfig:"OPENAI_CA_BUNDLE"`
		InsecureSkipVerify bool          `envconfig:"OPENAI_INSECURE_SKIP_VERIFY"`
		MaxAttempts        int           `envconfig:"OPENAI_RETRIES" default:"3"`
		BackoffBase        time.Duration `envconfig:"OPENAI_RETRY_BACKOFF" default:"800ms"`
		BackoffMax         time.Duration `envconfig:"OPENAI_RETRY_BACKOFF_MAX" default:"30s"`
	} `envconfig:""`

	Notify struct {
		Backend     string        `envconfig:"NOTIFY_BACKEND" default:"slack"`
		MaxAttempts int           `envconfig:"NOTIFY_RETRIES" default:"3"`
		BackoffBase time.Duration `envconfig:"NOTIFY_RETRY_BACKOFF" default:"1s"`
		BackoffMax  time.Duration `envconfig:"NOTIFY_RETRY_BACKOFF_MAX" default:"30s"`
	} `envconfig:""`

	Slack struct {
		Token   string        `envconfig:"SLACK_BOT_TOKEN"`
		Channel string        `envconfig:"SLACK_CHANNEL"`
		APIBase string        `envconfig:"SLACK_API_BASE" default:"https://slack.com/api"`
		Timeout time.Duration `envconfig:"SLACK_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		ChatID      string `envconfig:"TG_CHAT_ID"`
		PollTimeout int    `envconfig:"TG_POLL_TIMEOUT" default:"30"`
	} `envconfig:""`

	Run struct {
		Concurrency     int           `envconfig:"RUN_CONCURRENCY" default:"4"`
		SummarizerCalls int           `envconfig:"RUN_SUMMARIZER_CALLS" default:"2"`
		PublisherCalls  int           `envconfig:"RUN_PUBLISHER_CALLS" default:"2"`
		Timeout         time.Duration `envconfig:"RUN_TIMEOUT" default:"30m"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Dedup struct {
		TTL time.Duration `envconfig:"DEDUP_TTL" default:"72h"`
	} `envconfig:""`

	PGDSN          string `envconfig:"PG_DSN"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL"`
}

// Load загружает конфиг из окружения. Файл .env, если есть, читается первым.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("не удалось прочитать .env: %v", err)
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Location возвращает часовой пояс для календарных дат сегментов.
func (c AppConfig) Location() (*time.Location, error) {
	if c.TZ == "" || strings.EqualFold(c.TZ, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return nil, fmt.Errorf("часовой пояс %q: %w", c.TZ, err)
	}
	return loc, nil
}

type groupsFile struct {
	Groups []struct {
		Name string `toml:"name"`
	} `toml:"group"`
}

// LoadGroups возвращает отображаемые имена целевых групп.
// Если задан GROUPS_FILE, список читается из TOML ([[group]] name = "...").
func LoadGroups(cfg AppConfig) ([]string, error) {
	var names []string
	if cfg.GroupsFile != "" {
		var file groupsFile
		if _, err := toml.DecodeFile(cfg.GroupsFile, &file); err != nil {
			return nil, fmt.Errorf("parse groups file %s: %w", cfg.GroupsFile, err)
		}
		for _, g := range file.Groups {
			names = append(names, g.Name)
		}
	} else {
		names = cfg.TargetGroups
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if trimmed := strings.TrimSpace(n); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("не задано ни одной целевой группы")
	}
	return out, nil
}
