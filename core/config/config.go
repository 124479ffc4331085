package config

import (
	_ "embed"
	"reflect"
	"strings"
	"time"

	shlex "github.com/anmitsu/go-shlex"
	"github.com/go-playground/validator/v10"
	"github.com/josephlewis42/flexsh/core/alias"
	"github.com/josephlewis42/flexsh/core/shell"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
	AppDirName        = "flexsh"
)

type Configuration struct {
	Prompt   Prompt   `json:"prompt"`
	Colors   Colors   `json:"colors"`
	History  History  `json:"history"`
	Executor Executor `json:"executor"`
	Logging  Logging  `json:"logging"`

	Aliases     map[string]string `json:"aliases" validate:"dive,keys,alias_name,endkeys,shell_words"`
	Environment map[string]string `json:"environment" validate:"dive,keys,env_name,endkeys"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	validate.RegisterValidation("alias_name", func(fl validator.FieldLevel) bool {
		return alias.ValidName(fl.Field().String())
	})
	validate.RegisterValidation("env_name", func(fl validator.FieldLevel) bool {
		return shell.IsName(fl.Field().String())
	})
	validate.RegisterValidation("shell_words", func(fl validator.FieldLevel) bool {
		_, err := shlex.Split(fl.Field().String(), true)
		return err == nil
	})

	return validate.Struct(c)
}

type Prompt struct {
	Format       string `json:"format" validate:"required"`
	ShowExitCode bool   `json:"show_exit_code"`
	ShowTime     bool   `json:"show_time"`
}

type Colors struct {
	Enabled     bool   `json:"enabled"`
	ErrorColor  string `json:"error_color" validate:"oneof=black red green yellow blue magenta cyan white"`
	PromptColor string `json:"prompt_color" validate:"oneof=black red green yellow blue magenta cyan white"`
}

type History struct {
	MaxEntries          int  `json:"max_entries" validate:"gte=0"`
	IgnoreDuplicates    bool `json:"ignore_duplicates"`
	IgnoreSpacePrefixed bool `json:"ignore_space_prefixed"`
}

type Executor struct {
	InterruptGraceMs int `json:"interrupt_grace_ms" validate:"gte=0"`
}

// InterruptGrace is the time between interrupting and killing a pipeline.
func (e Executor) InterruptGrace() time.Duration {
	return time.Duration(e.InterruptGraceMs) * time.Millisecond
}

type Logging struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=console json"`
}

// Default returns the built in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
