package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	viper.AutomaticEnv()
}

// FlagBuilder declares a flag on one or more commands and binds it to viper
// and the environment in a single chain.
type FlagBuilder struct {
	commands []*cobra.Command
	key      string
}

// NewFlagBuilder returns a FlagBuilder attached to command. A nil command
// yields an empty builder which commands can be added to later.
func NewFlagBuilder(command *cobra.Command) *FlagBuilder {
	fb := &FlagBuilder{}
	if command != nil {
		fb.AddCommand(command)
	}
	return fb
}

// AddCommand registers another command the subsequent flag definitions apply to.
func (fb *FlagBuilder) AddCommand(command *cobra.Command) *FlagBuilder {
	fb.commands = append(fb.commands, command)
	return fb
}

// Flag starts the definition of a new flag.
func (fb *FlagBuilder) Flag() *FlagBuilder {
	fb.key = ""
	return fb
}

// String declares a string flag on each command.
func (fb *FlagBuilder) String(key string, defaultValue string, description string) *FlagBuilder {
	return fb.setKey(key).each(func(command *cobra.Command) {
		command.Flags().String(key, defaultValue, description)
	})
}

// Int declares an int flag on each command.
func (fb *FlagBuilder) Int(key string, defaultValue int, description string) *FlagBuilder {
	return fb.setKey(key).each(func(command *cobra.Command) {
		command.Flags().Int(key, defaultValue, description)
	})
}

// Bool declares a bool flag on each command.
func (fb *FlagBuilder) Bool(key string, defaultValue bool, description string) *FlagBuilder {
	return fb.setKey(key).each(func(command *cobra.Command) {
		command.Flags().Bool(key, defaultValue, description)
	})
}

// Bind binds the flag to the viper key of the same name.
func (fb *FlagBuilder) Bind(key string) *FlagBuilder {
	return fb.each(func(command *cobra.Command) {
		Must(viper.BindPFlag(key, command.Flags().Lookup(key)))
	})
}

// Env binds the current flag to an environment variable.
func (fb *FlagBuilder) Env(env string) *FlagBuilder {
	Must(viper.BindEnv(fb.key, env))
	return fb
}

// Require marks the current flag as required on each command.
func (fb *FlagBuilder) Require() *FlagBuilder {
	return fb.each(func(command *cobra.Command) {
		Must(command.MarkFlagRequired(fb.key))
	})
}

func (fb *FlagBuilder) setKey(key string) *FlagBuilder {
	if fb.key != "" {
		Must(fmt.Errorf("flag '%s' started before '%s' was finished, call .Flag() between definitions", key, fb.key))
	}
	fb.key = key
	return fb
}

func (fb *FlagBuilder) each(iterator func(*cobra.Command)) *FlagBuilder {
	for _, command := range fb.commands {
		iterator(command)
	}
	return fb
}

// Must exits the process when a startup error cannot be recovered from.
func Must(err error) {
	if err != nil {
		log.Printf("failed to initialize: %s\n", err.Error())
		os.Exit(1)
	}
}
