package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvUsername       = "VISA_USERNAME"
	EnvPassword       = "VISA_PASSWORD"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

// Env holds secret overrides read from the process environment.
type Env struct {
	Username       string
	Password       string
	TelegramToken  string
	TelegramChatID int64
}

// LoadEnv reads an optional dotenv file into the process environment (existing
// variables win) and then collects the overrides. A missing file is not an error.
func LoadEnv(dotenvPath string) (Env, error) {
	if p := strings.TrimSpace(dotenvPath); p != "" {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", p, err)
		}
	}
	return EnvFrom(os.LookupEnv)
}

// EnvFrom collects overrides through lookup.
func EnvFrom(lookup func(string) (string, bool)) (Env, error) {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	e := Env{
		Username:      get(EnvUsername),
		Password:      get(EnvPassword),
		TelegramToken: get(EnvTelegramToken),
	}
	if raw := get(EnvTelegramChatID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Env{}, fmt.Errorf("%s: invalid chat id %q: %w", EnvTelegramChatID, raw, err)
		}
		e.TelegramChatID = id
	}
	return e, nil
}

// Apply overwrites the matching fields of cfg with every non-empty override.
func (e Env) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if e.Username != "" {
		cfg.Account.Username = e.Username
	}
	if e.Password != "" {
		cfg.Account.Password = e.Password
	}
	if e.TelegramToken != "" {
		cfg.Telegram.Token = e.TelegramToken
	}
	if e.TelegramChatID != 0 {
		cfg.Telegram.ChatID = e.TelegramChatID
	}
}
