package config

import (
	"log"
	"os"
	"strconv"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
}

// ScheduleConfig holds the cron expressions for the four notification
// milestones plus the day offsets the selection queries use.
type ScheduleConfig struct {
	BillingReminder string
	PreDue          string
	DueDate         string
	Overdue         string

	ReminderDaysAhead int
	PreDueDaysAhead   int
}

type AppConfig struct {
	Port     string
	Postgres PostgresConfig
	Redis    RedisConfig
	S3       S3Config
	S3Upload bool
	Schedule ScheduleConfig

	// LoanRefPrefix is the contract-number prefix matching looks for inside
	// bank transfer narratives, e.g. "LN" for numbers like LN-10042.
	LoanRefPrefix string

	FilesDir          string
	FilesPublicPrefix string
	ExternalURL       string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatalf("invalid bool value %q: %v", s, err)
	}
	return b
}

func Load() AppConfig {
	return AppConfig{
		Port: getenv("APP_PORT", "8020"),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "root"),
			Password: getenv("PG_PASSWORD", "hello-world"),
			DBName:   getenv("PG_DB", "loanster"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "loanster_"),
		},
		S3: S3Config{
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "loanster-files"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", ""),
		},
		S3Upload: mustBool(getenv("S3_UPLOAD", "false")),
		Schedule: ScheduleConfig{
			BillingReminder:   getenv("CRON_BILLING_REMINDER", "0 9 * * *"),
			PreDue:            getenv("CRON_PRE_DUE", "30 9 * * *"),
			DueDate:           getenv("CRON_DUE_DATE", "0 10 * * *"),
			Overdue:           getenv("CRON_OVERDUE", "0 11 * * *"),
			ReminderDaysAhead: mustAtoi(getenv("REMINDER_DAYS_AHEAD", "7")),
			PreDueDaysAhead:   mustAtoi(getenv("PRE_DUE_DAYS_AHEAD", "3")),
		},
		LoanRefPrefix:     getenv("LOAN_REF_PREFIX", "LN"),
		FilesDir:          getenv("FILES_DIR", "./files"),
		FilesPublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
		ExternalURL:       getenv("EXTERNAL_URL", ""),
	}
}
