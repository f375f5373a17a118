// Package config loads server configuration from an optional CUE (or JSON)
// file validated against an embedded schema, then applies environment
// overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Config holds server configuration.
type Config struct {
	Port        int
	DatabaseURL string
	Origins     []string
	HSTURL      string
	User        string
	CallTimeout time.Duration
	SessionMax  time.Duration
	SessionIdle time.Duration
	Seed        bool
	Debug       bool
}

// file mirrors #Config in schema.cue.
type file struct {
	Port        int      `json:"port"`
	DatabaseURL string   `json:"databaseURL"`
	Origins     []string `json:"origins"`
	HSTURL      string   `json:"hstURL"`
	User        string   `json:"user"`
	CallTimeout string   `json:"callTimeout"`
	Session     struct {
		MaxAge      string `json:"maxAge"`
		IdleTimeout string `json:"idleTimeout"`
	} `json:"session"`
	Seed  bool `json:"seed"`
	Debug bool `json:"debug"`
}

// Load reads the file at path (skipped when path is empty), fills in schema
// defaults and applies environment overrides.
func Load(path string) (Config, error) {
	var src []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		src = b
	}
	f, err := decode(src, path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := f.config()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(src []byte, filename string) (file, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return file{}, fmt.Errorf("compiling config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))
	if len(src) > 0 {
		data := ctx.CompileBytes(src, cue.Filename(filename))
		if err := data.Err(); err != nil {
			return file{}, fmt.Errorf("parsing %s: %w", filename, err)
		}
		v = v.Unify(data)
	}
	if err := v.Err(); err != nil {
		return file{}, fmt.Errorf("validating config: %w", err)
	}
	var f file
	if err := v.Decode(&f); err != nil {
		return file{}, fmt.Errorf("validating config: %w", err)
	}
	return f, nil
}

func (f file) config() (Config, error) {
	cfg := Config{
		Port:        f.Port,
		DatabaseURL: f.DatabaseURL,
		Origins:     f.Origins,
		HSTURL:      f.HSTURL,
		User:        f.User,
		Seed:        f.Seed,
		Debug:       f.Debug,
	}
	var err error
	if cfg.CallTimeout, err = parseDuration("callTimeout", f.CallTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionMax, err = parseDuration("session.maxAge", f.Session.MaxAge); err != nil {
		return Config{}, err
	}
	if cfg.SessionIdle, err = parseDuration("session.idleTimeout", f.Session.IdleTimeout); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", field, err)
	}
	return d, nil
}

// applyEnv overrides fields from PORT, DATABASE_URL, CHANNEL_ORIGINS
// (comma separated), HST_URL and CALL_TIMEOUT.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if p, ok := lookup("PORT"); ok && p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 || v > 65535 {
			return fmt.Errorf("invalid PORT %q", p)
		}
		c.Port = v
	}
	if dsn, ok := lookup("DATABASE_URL"); ok && dsn != "" {
		c.DatabaseURL = dsn
	}
	if origins, ok := lookup("CHANNEL_ORIGINS"); ok && origins != "" {
		c.Origins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Origins = append(c.Origins, o)
			}
		}
	}
	if u, ok := lookup("HST_URL"); ok {
		c.HSTURL = u
	}
	if t, ok := lookup("CALL_TIMEOUT"); ok && t != "" {
		d, err := parseDuration("CALL_TIMEOUT", t)
		if err != nil {
			return err
		}
		c.CallTimeout = d
	}
	return nil
}
